package models

import "time"

// Consultation is one row of the consultation ledger. FeePerUnit is
// snapshotted at session start; later fee changes never touch an open
// session. Duration, units, charge and payout are written once, at the
// IN_PROGRESS -> COMPLETED transition, after which the row is immutable.
type Consultation struct {
	ID                  string     `json:"id" db:"id"`
	CustomerAccountID   string     `json:"customer_account_id" db:"customer_account_id"`
	ConsultantAccountID string     `json:"consultant_account_id" db:"consultant_account_id"`
	ConsultType         string     `json:"consult_type" db:"consult_type"`
	Method              string     `json:"method" db:"method"`
	FeePerUnit          int64      `json:"fee_per_unit" db:"fee_per_unit"`
	StartedAt           time.Time  `json:"started_at" db:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds     int64      `json:"duration_seconds" db:"duration_seconds"`
	BilledUnits         int64      `json:"billed_units" db:"billed_units"`
	Charge              int64      `json:"charge" db:"charge"`
	Payout              int64      `json:"payout" db:"payout"`
	Status              string     `json:"status" db:"status"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}

// Consultant carries a consultant's current per-unit fee. Sessions copy it
// at start; this row is free to change afterwards.
type Consultant struct {
	AccountID  string    `json:"account_id" db:"account_id"`
	FeePerUnit int64     `json:"fee_per_unit" db:"fee_per_unit"`
	Active     bool      `json:"active" db:"active"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

const (
	ConsultationStatusInProgress = "IN_PROGRESS"
	ConsultationStatusCompleted  = "COMPLETED"
)
