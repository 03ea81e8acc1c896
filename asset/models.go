package asset

import "time"

// Status is the listing lifecycle of an asset.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusSold     Status = "sold"
	StatusInactive Status = "inactive"
)

// PricingType says whether the asset is sold outright or takes investment.
type PricingType string

const (
	PricingSale       PricingType = "sale"
	PricingInvestment PricingType = "investment"
)

// Pricing is the asking price in minor currency units.
type Pricing struct {
	Type     PricingType
	Amount   int64
	Currency string
}

// Asset mirrors the assets table.
type Asset struct {
	ID        string
	OwnerID   string
	Name      string
	Pricing   Pricing
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Availability is the public purchase view of an asset.
type Availability struct {
	AssetID   string      `json:"assetId"`
	Status    Status      `json:"status"`
	Available bool        `json:"available"`
	Pricing   PricingType `json:"pricingType"`
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency"`
}

func (a Asset) Availability() Availability {
	return Availability{
		AssetID:   a.ID,
		Status:    a.Status,
		Available: a.Status == StatusActive,
		Pricing:   a.Pricing.Type,
		Amount:    a.Pricing.Amount,
		Currency:  a.Pricing.Currency,
	}
}

// Metric names an engagement counter kept on the asset row.
type Metric string

const (
	MetricViews     Metric = "views"
	MetricSaves     Metric = "saves"
	MetricInquiries Metric = "inquiries"
)

func (m Metric) column() (string, bool) {
	switch m {
	case MetricViews:
		return "views", true
	case MetricSaves:
		return "saves", true
	case MetricInquiries:
		return "inquiries", true
	}
	return "", false
}
