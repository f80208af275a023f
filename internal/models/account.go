package models

import (
	"time"
)

type Account struct {
	ID          int       `json:"id" db:"id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	AccountName string    `json:"account_name" db:"account_name"`
	Balance     int64     `json:"balance" db:"balance"` // cached point balance
	Status      string    `json:"status" db:"status"`   // ACTIVE, SUSPENDED or CLOSED
	Version     int       `json:"version" db:"version"` // for optimistic locking
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PointEntry is one row of the point movement audit trail. Every balance
// mutation writes exactly one entry with the balance observed after it.
type PointEntry struct {
	ID           int       `json:"id" db:"id"`
	Ref          string    `json:"ref" db:"ref"`
	EntryType    string    `json:"entry_type" db:"entry_type"` // PURCHASE, PURCHASE_REVERSAL, TRANSFER, CONSULT_CHARGE, CONSULT_PAYOUT, RECONCILE
	AccountID    string    `json:"account_id" db:"account_id"`
	Amount       int64     `json:"amount" db:"amount"` // signed, in points
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

const (
	AccountStatusActive    = "ACTIVE"
	AccountStatusSuspended = "SUSPENDED"
	AccountStatusClosed    = "CLOSED"
)

const (
	EntryTypePurchase         = "PURCHASE"
	EntryTypePurchaseReversal = "PURCHASE_REVERSAL"
	EntryTypeTransfer         = "TRANSFER"
	EntryTypeConsultCharge    = "CONSULT_CHARGE"
	EntryTypeConsultPayout    = "CONSULT_PAYOUT"
	EntryTypeReconcile        = "RECONCILE"
)
