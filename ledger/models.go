package ledger

import (
	"math"
	"time"
)

// Status is the settlement state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether settlement is finished for the transaction.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// Type distinguishes outright purchases from investments.
type Type string

const (
	TypePurchase   Type = "purchase"
	TypeInvestment Type = "investment"
)

func (t Type) Valid() bool {
	return t == TypePurchase || t == TypeInvestment
}

// Flag marks a transaction that needs operator attention.
type Flag string

const (
	FlagNone             Flag = ""
	FlagAssetAlreadySold Flag = "asset_already_sold"
)

// Metadata is stored as jsonb alongside the transaction.
type Metadata struct {
	PaymentMethod  string `json:"paymentMethod,omitempty"`
	ProcessingFee  int64  `json:"processingFee"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Transaction mirrors the transactions table. Amounts are minor currency units.
type Transaction struct {
	ID              string     `json:"id"`
	AssetID         string     `json:"assetId"`
	BuyerID         string     `json:"buyerId"`
	SellerID        string     `json:"sellerId"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Type            Type       `json:"type"`
	Status          Status     `json:"status"`
	PaymentIntentID string     `json:"paymentIntentId"`
	PlatformFee     int64      `json:"platformFee"`
	NetAmount       int64      `json:"netAmount"`
	Flag            Flag       `json:"flag,omitempty"`
	Metadata        Metadata   `json:"metadata"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Update carries the fields written alongside a status change.
type Update struct {
	CompletedAt   *time.Time
	PaymentMethod string
}

// HistoryPage is one page of a party's transactions, newest first.
type HistoryPage struct {
	Items []Transaction `json:"transactions"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps the row offset of any page within int range.
	MaxPage = math.MaxInt / MaxPageSize
)

// NormalizePage clamps page and limit to their accepted ranges.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
