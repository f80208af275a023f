package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/models"
)

// SettlementService produces the monthly per-consultant statements. A run
// replaces the month's snapshots wholesale inside one transaction: prior
// rows are deleted before re-insert, never merged, so a re-run can never
// double count and an observer never sees a half-replaced month.
type SettlementService struct {
	db          *sql.DB
	unitSeconds int64
}

func NewSettlementService(db *sql.DB, unitSeconds int64) *SettlementService {
	return &SettlementService{db: db, unitSeconds: unitSeconds}
}

// SettlementRun summarizes one settlement computation.
type SettlementRun struct {
	Month           string `json:"month"`
	ConsultantCount int64  `json:"consultantCount"`
	TotalSessions   int64  `json:"totalSessions"`
	TotalCharge     int64  `json:"totalCharge"`
	TotalPayout     int64  `json:"totalPayout"`
}

// SessionDetail is one contributing session in a consultant's statement.
type SessionDetail struct {
	ConsultationID string    `json:"consultationId"`
	StartedAt      time.Time `json:"startedAt"`
	BilledUnits    int64     `json:"billedUnits"`
	BilledSeconds  int64     `json:"billedSeconds"`
	Charge         int64     `json:"charge"`
	Payout         int64     `json:"payout"`
}

type settlementGroup struct {
	consultantID  string
	sessionCount  int64
	billedUnits   int64
	totalCharge   int64
	totalPayout   int64
	items         []models.SettlementItem
}

// ComputeSettlement aggregates all completed consultations whose end falls
// in the given month ("2006-01"). Billable time comes from the already
// billed unit counts, never re-derived from raw durations, so settlement
// bills exactly what was charged. The payout rate is the rate in force at
// settlement time, passed in explicitly.
func (s *SettlementService) ComputeSettlement(month string, payoutRate decimal.Decimal) (*SettlementRun, error) {
	monthStart, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("month %q: %w", month, ErrInvalidOperation)
	}
	monthEnd := monthStart.AddDate(0, 1, 0)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Full replacement: failing to clear the prior snapshot set aborts the
	// run, since a partial replacement corrupts the audit trail.
	if _, err := tx.Exec(`
		DELETE FROM settlement_snapshots WHERE month = $1`, month); err != nil {
		return nil, fmt.Errorf("clear prior snapshots for %s: %v: %w", month, err, ErrConsistency)
	}

	rows, err := tx.Query(`
		SELECT id, consultant_account_id, billed_units, charge
		FROM consultations
		WHERE status = 'COMPLETED' AND ended_at >= $1 AND ended_at < $2
		ORDER BY consultant_account_id, ended_at`, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("select month sessions: %w", err)
	}

	var groups []*settlementGroup
	var current *settlementGroup
	for rows.Next() {
		var id, consultantID string
		var units, charge int64
		if err := rows.Scan(&id, &consultantID, &units, &charge); err != nil {
			rows.Close()
			return nil, err
		}
		if current == nil || current.consultantID != consultantID {
			current = &settlementGroup{consultantID: consultantID}
			groups = append(groups, current)
		}
		payout := ConsultantShare(charge, payoutRate)
		current.sessionCount++
		current.billedUnits += units
		current.totalCharge += charge
		current.totalPayout += payout
		current.items = append(current.items, models.SettlementItem{
			ConsultationID: id,
			BilledUnits:    units,
			Charge:         charge,
			Payout:         payout,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	run := &SettlementRun{Month: month}
	for _, g := range groups {
		var snapshotID int
		err := tx.QueryRow(`
			INSERT INTO settlement_snapshots
				(consultant_account_id, month, session_count, billed_seconds, total_charge, total_payout, payout_rate, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			g.consultantID, month, g.sessionCount, g.billedUnits*s.unitSeconds,
			g.totalCharge, g.totalPayout, payoutRate.String(), time.Now()).Scan(&snapshotID)
		if err != nil {
			return nil, fmt.Errorf("insert snapshot for %s: %w", g.consultantID, err)
		}

		for _, item := range g.items {
			if _, err := tx.Exec(`
				INSERT INTO settlement_items (snapshot_id, consultation_id, billed_units, charge, payout)
				VALUES ($1, $2, $3, $4, $5)`,
				snapshotID, item.ConsultationID, item.BilledUnits, item.Charge, item.Payout); err != nil {
				return nil, fmt.Errorf("insert item %s: %w", item.ConsultationID, err)
			}
		}

		run.ConsultantCount++
		run.TotalSessions += g.sessionCount
		run.TotalCharge += g.totalCharge
		run.TotalPayout += g.totalPayout
	}

	if _, err := tx.Exec(`
		INSERT INTO settlement_summaries (month, consultant_count, session_count, total_charge, total_payout, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (month) DO UPDATE
		SET consultant_count = EXCLUDED.consultant_count,
			session_count = EXCLUDED.session_count,
			total_charge = EXCLUDED.total_charge,
			total_payout = EXCLUDED.total_payout,
			computed_at = EXCLUDED.computed_at`,
		month, run.ConsultantCount, run.TotalSessions, run.TotalCharge, run.TotalPayout, time.Now()); err != nil {
		return nil, fmt.Errorf("upsert summary for %s: %w", month, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[SETTLEMENT] Month %s: %d consultants, %d sessions, charge %d, payout %d",
		month, run.ConsultantCount, run.TotalSessions, run.TotalCharge, run.TotalPayout)
	return run, nil
}

// GetSettlement returns a consultant's snapshot for a month along with the
// contributing sessions.
func (s *SettlementService) GetSettlement(consultantID, month string) (*models.SettlementSnapshot, []SessionDetail, error) {
	var snap models.SettlementSnapshot
	err := s.db.QueryRow(`
		SELECT id, consultant_account_id, month, session_count, billed_seconds, total_charge, total_payout, payout_rate, created_at
		FROM settlement_snapshots
		WHERE consultant_account_id = $1 AND month = $2`, consultantID, month).
		Scan(&snap.ID, &snap.ConsultantAccountID, &snap.Month, &snap.SessionCount,
			&snap.BilledSeconds, &snap.TotalCharge, &snap.TotalPayout, &snap.PayoutRate, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("no settlement for %s in %s: %w", consultantID, month, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(`
		SELECT i.consultation_id, c.started_at, i.billed_units, i.charge, i.payout
		FROM settlement_items i
		JOIN consultations c ON c.id = i.consultation_id
		WHERE i.snapshot_id = $1
		ORDER BY c.started_at`, snap.ID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var details []SessionDetail
	for rows.Next() {
		var d SessionDetail
		if err := rows.Scan(&d.ConsultationID, &d.StartedAt, &d.BilledUnits, &d.Charge, &d.Payout); err != nil {
			return nil, nil, err
		}
		d.BilledSeconds = d.BilledUnits * s.unitSeconds
		details = append(details, d)
	}
	return &snap, details, rows.Err()
}
