package services

import (
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/models"
)

// ReconcileService compares the cached account balances against their
// derivation from the purchase and consultation ledgers. The auditor is
// read-only and runs against whatever the store serves; the repairer
// re-checks drift under a row lock immediately before overwriting, so a
// balance fixed by a concurrent write is never clobbered.
type ReconcileService struct {
	db        *sql.DB
	tolerance int64
}

func NewReconcileService(db *sql.DB, tolerance int64) *ReconcileService {
	return &ReconcileService{db: db, tolerance: tolerance}
}

// DriftReport is one drifting account found by the auditor.
type DriftReport struct {
	AccountID string `json:"accountId"`
	Stored    int64  `json:"stored"`
	Derived   int64  `json:"derived"`
	Diff      int64  `json:"diff"`
}

// AuditBalances reports every account whose cached balance drifts from the
// ledger derivation beyond the tolerance. Pass an empty accountID to audit
// all accounts.
func (s *ReconcileService) AuditBalances(accountID string) ([]DriftReport, error) {
	query := `
		SELECT a.account_id, a.balance,
			COALESCE(p.credits, 0) - COALESCE(c.charges, 0) AS derived
		FROM accounts a
		LEFT JOIN (
			SELECT account_id, SUM(point_amount) AS credits
			FROM purchases WHERE status = 'COMPLETED' GROUP BY account_id
		) p ON p.account_id = a.account_id
		LEFT JOIN (
			SELECT customer_account_id, SUM(charge) AS charges
			FROM consultations WHERE status = 'COMPLETED' GROUP BY customer_account_id
		) c ON c.customer_account_id = a.account_id`

	var rows *sql.Rows
	var err error
	if accountID != "" {
		rows, err = s.db.Query(query+` WHERE a.account_id = $1`, accountID)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var drifted []DriftReport
	for rows.Next() {
		var r DriftReport
		if err := rows.Scan(&r.AccountID, &r.Stored, &r.Derived); err != nil {
			return nil, err
		}
		r.Diff = r.Stored - r.Derived
		if abs64(r.Diff) > s.tolerance {
			drifted = append(drifted, r)
		}
	}
	return drifted, rows.Err()
}

// RepairBalances overwrites drifting cached balances with their derivation
// and returns the number of accounts repaired. Each repair re-verifies the
// drift under FOR UPDATE before writing. Residual drift after the pass is
// a logic defect, not stale data, and fails the run with ErrConsistency.
func (s *ReconcileService) RepairBalances(accountID string) (int, error) {
	drifted, err := s.AuditBalances(accountID)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, report := range drifted {
		fixed, err := s.repairAccount(report.AccountID)
		if err != nil {
			return repaired, fmt.Errorf("repair %s: %w", report.AccountID, err)
		}
		if fixed {
			repaired++
		}
	}

	// A second audit must come back clean; anything left points at a bug
	// in the derivation or a concurrent-write race, not stale data.
	remaining, err := s.AuditBalances(accountID)
	if err != nil {
		return repaired, err
	}
	if len(remaining) > 0 {
		log.Printf("[RECONCILE] ALERT: %d accounts still drifting after repair pass", len(remaining))
		return repaired, fmt.Errorf("%d accounts drifting post-repair: %w", len(remaining), ErrConsistency)
	}

	log.Printf("[RECONCILE] Repair pass complete: %d accounts repaired", repaired)
	return repaired, nil
}

// repairAccount reports whether a write happened. A false return with nil
// error means the drift had already converged by the time the row lock was
// taken.
func (s *ReconcileService) repairAccount(accountID string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var stored int64
	var version int
	err = tx.QueryRow(`
		SELECT balance, version FROM accounts WHERE account_id = $1 FOR UPDATE`,
		accountID).Scan(&stored, &version)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return false, err
	}

	var derived int64
	err = tx.QueryRow(`
		SELECT
			COALESCE((SELECT SUM(point_amount) FROM purchases
				WHERE account_id = $1 AND status = 'COMPLETED'), 0)
			-
			COALESCE((SELECT SUM(charge) FROM consultations
				WHERE customer_account_id = $1 AND status = 'COMPLETED'), 0)`,
		accountID).Scan(&derived)
	if err != nil {
		return false, err
	}

	// Re-check under the lock: a concurrent write may have fixed it since
	// the audit ran.
	if abs64(stored-derived) <= s.tolerance {
		return false, tx.Commit()
	}

	if _, err := tx.Exec(`
		UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2
		WHERE account_id = $3`,
		derived, time.Now(), accountID); err != nil {
		return false, err
	}

	if _, err := tx.Exec(`
		INSERT INTO point_entries (ref, entry_type, account_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		"reconcile", models.EntryTypeReconcile, accountID, derived-stored, derived, time.Now()); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	log.Printf("[RECONCILE] Account %s repaired: %d -> %d", accountID, stored, derived)
	return true, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
