package review

import "time"

// Status represents the lifecycle of a settlement review.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Reason names why a settlement needs an operator.
type Reason string

const ReasonAssetAlreadySold Reason = "asset_already_sold"

// Record mirrors the settlement_reviews table.
type Record struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	AssetID       string     `json:"assetId"`
	Reason        Reason     `json:"reason"`
	Status        Status     `json:"status"`
	Note          *string    `json:"note,omitempty"`
	ResolvedBy    *string    `json:"resolvedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}
