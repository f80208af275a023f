package models

import "time"

// Purchase is one row of the purchase ledger. Rows are immutable once
// COMPLETED except for the single COMPLETED -> CANCELLED transition, which
// reverses the credit exactly once.
type Purchase struct {
	ID          int        `json:"id" db:"id"`
	PaymentRef  string     `json:"payment_ref" db:"payment_ref"`
	AccountID   string     `json:"account_id" db:"account_id"`
	MoneyAmount int64      `json:"money_amount" db:"money_amount"` // in minor currency units
	PointAmount int64      `json:"point_amount" db:"point_amount"`
	Method      string     `json:"method" db:"method"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

const (
	PurchaseStatusPending   = "PENDING"
	PurchaseStatusCompleted = "COMPLETED"
	PurchaseStatusCancelled = "CANCELLED"
	PurchaseStatusFailed    = "FAILED"
)
