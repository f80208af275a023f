package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BillableUnits quantizes a session duration into whole billing units.
// Partial units always round up: a 31s session at a 30s unit bills 2 units.
// Rounding up is a revenue policy, not an accident; do not change it to
// round-to-nearest.
func BillableUnits(durationSeconds, unitSeconds int64) int64 {
	if durationSeconds <= 0 {
		return 0
	}
	return (durationSeconds + unitSeconds - 1) / unitSeconds
}

// SessionCharge is the customer-facing price for a billed session.
func SessionCharge(units, feePerUnit int64) int64 {
	return units * feePerUnit
}

// ConsultantShare is the portion of a charge credited to the consultant,
// floored so the platform never pays out fractions of a point. The retained
// margin is charge - share and is derivable, never stored.
func ConsultantShare(charge int64, payoutRate decimal.Decimal) int64 {
	return payoutRate.Mul(decimal.NewFromInt(charge)).Floor().IntPart()
}

// SessionDuration returns the whole-second duration of a closed interval.
// The end instant must not precede the start instant.
func SessionDuration(start, end time.Time) (int64, error) {
	if end.Before(start) {
		return 0, ErrInvalidInterval
	}
	return int64(end.Sub(start) / time.Second), nil
}

// FormatDuration renders seconds as HH:MM:SS for display. The numeric
// second count remains the source of truth; this string is never parsed
// back.
func FormatDuration(seconds int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
