package models

import "time"

// SettlementSnapshot is the write-once monthly statement for one consultant.
// A re-run for the same month deletes and re-inserts, never merges.
type SettlementSnapshot struct {
	ID                  int       `json:"id" db:"id"`
	ConsultantAccountID string    `json:"consultant_account_id" db:"consultant_account_id"`
	Month               string    `json:"month" db:"month"` // "2006-01"
	SessionCount        int64     `json:"session_count" db:"session_count"`
	BilledSeconds       int64     `json:"billed_seconds" db:"billed_seconds"`
	TotalCharge         int64     `json:"total_charge" db:"total_charge"`
	TotalPayout         int64     `json:"total_payout" db:"total_payout"`
	PayoutRate          string    `json:"payout_rate" db:"payout_rate"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// SettlementItem references one consultation contributing to a snapshot.
type SettlementItem struct {
	SnapshotID     int    `json:"snapshot_id" db:"snapshot_id"`
	ConsultationID string `json:"consultation_id" db:"consultation_id"`
	BilledUnits    int64  `json:"billed_units" db:"billed_units"`
	Charge         int64  `json:"charge" db:"charge"`
	Payout         int64  `json:"payout" db:"payout"`
}

// SettlementSummary aggregates all consultants' snapshots for a month.
// Derived and recomputable; upserted per month.
type SettlementSummary struct {
	Month           string    `json:"month" db:"month"`
	ConsultantCount int64     `json:"consultant_count" db:"consultant_count"`
	SessionCount    int64     `json:"session_count" db:"session_count"`
	TotalCharge     int64     `json:"total_charge" db:"total_charge"`
	TotalPayout     int64     `json:"total_payout" db:"total_payout"`
	ComputedAt      time.Time `json:"computed_at" db:"computed_at"`
}
