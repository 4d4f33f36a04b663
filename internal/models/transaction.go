package models

import (
	"time"
)

// PaymentStatus is the lifecycle state of a purchase attempt
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// validTransitions is the full edge set of the payment state machine.
// PENDING is the only non-terminal state; COMPLETED can still move to
// REFUNDED when the gateway reports a refund.
var validTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

// CanTransition reports whether from -> to is a legal state-machine edge.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the forward purchase flow.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// Transaction records one purchase attempt and its download entitlement.
type Transaction struct {
	BaseModel

	TransactionID string `json:"transaction_id" gorm:"not null;size:36;uniqueIndex"`
	UserID        string `json:"user_id" gorm:"not null;size:36;index"`
	BookID        string `json:"book_id" gorm:"not null;size:36;index"`
	CustomerEmail string `json:"customer_email" gorm:"size:255"` // receipt destination, captured at initiation

	// Price snapshot taken from the book at initiation time, in minor
	// currency units. Client-supplied amounts are never trusted.
	Amount int64 `json:"amount" gorm:"not null"`

	PaymentStatus  PaymentStatus `json:"payment_status" gorm:"not null;size:20;index"`
	PaymentGateway string        `json:"payment_gateway" gorm:"size:40"`

	// Correlation identifiers for gateway reconciliation
	GatewayOrderID string `json:"gateway_order_id" gorm:"size:64;uniqueIndex"`
	GatewayTxnID   string `json:"gateway_txn_id" gorm:"size:100;index"`

	// Download entitlement. DownloadToken is minted only on the
	// transition to COMPLETED (or at grant time for free books).
	DownloadToken     string     `json:"download_token,omitempty" gorm:"size:36;index"`
	DownloadCount     int        `json:"download_count" gorm:"default:0"`
	MaxDownloads      int        `json:"max_downloads" gorm:"not null"`
	DownloadExpiresAt *time.Time `json:"download_expires_at,omitempty"`

	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
}

// TableName specifies the table name
func (Transaction) TableName() string {
	return "transactions"
}

// IsTerminal reports whether the transaction has left PENDING.
func (t *Transaction) IsTerminal() bool {
	return t.PaymentStatus.IsTerminal()
}

// RemainingDownloads returns how many redemptions are left on the grant.
func (t *Transaction) RemainingDownloads() int {
	remaining := t.MaxDownloads - t.DownloadCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DownloadGrant carries the entitlement fields written on the
// PENDING -> COMPLETED transition.
type DownloadGrant struct {
	Token        string
	MaxDownloads int
	ExpiresAt    time.Time
	PurchasedAt  time.Time
	GatewayTxnID string
}
