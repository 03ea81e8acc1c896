package notify

import "time"

// Event announces a terminal settlement transition.
type Event struct {
	TransactionID string    `json:"transactionId"`
	AssetID       string    `json:"assetId"`
	Type          string    `json:"type"`
	FromStatus    string    `json:"fromStatus"`
	ToStatus      string    `json:"toStatus"`
	Flag          string    `json:"flag,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
