package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/config"
	"github.com/consultpoint/backend/internal/models"
)

// ConsultationService drives the session state machine: IN_PROGRESS ->
// COMPLETED, terminal, no reopening. The fee per unit is snapshotted at
// start; the single charge computation happens at close, together with the
// customer debit and consultant credit, as one database transaction.
type ConsultationService struct {
	db     *sql.DB
	ledger *PointLedgerService
	cfg    *config.BillingConfig
}

func NewConsultationService(db *sql.DB, ledger *PointLedgerService, cfg *config.BillingConfig) *ConsultationService {
	return &ConsultationService{
		db:     db,
		ledger: ledger,
		cfg:    cfg,
	}
}

// SessionClose reports the outcome of a completed session.
type SessionClose struct {
	Session          *models.Consultation `json:"session"`
	DurationSeconds  int64                `json:"durationSeconds"`
	Duration         string               `json:"duration"`
	Units            int64                `json:"units"`
	Charge           int64                `json:"charge"`
	ConsultantPayout int64                `json:"consultantPayout"`
	CustomerBalance  int64                `json:"customerBalance"`
}

// StartConsultation opens a session. The customer's balance is checked
// once, here; the consultant's current fee is copied onto the session and
// is immune to later fee changes.
func (s *ConsultationService) StartConsultation(customerID, consultantID, consultType, method string, startAt *time.Time) (*models.Consultation, error) {
	if customerID == consultantID {
		return nil, fmt.Errorf("self-consultation: %w", ErrInvalidOperation)
	}

	var feePerUnit int64
	var active bool
	var accountStatus string
	err := s.db.QueryRow(`
		SELECT c.fee_per_unit, c.active, a.status
		FROM consultants c
		JOIN accounts a ON a.account_id = c.account_id
		WHERE c.account_id = $1`, consultantID).Scan(&feePerUnit, &active, &accountStatus)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("consultant %s: %w", consultantID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !active || accountStatus != models.AccountStatusActive {
		return nil, fmt.Errorf("consultant %s inactive: %w", consultantID, ErrNotFound)
	}

	balance, err := s.ledger.GetBalance(customerID)
	if err != nil {
		return nil, err
	}
	if balance < s.cfg.MinStartBalance {
		return nil, fmt.Errorf("balance %d below minimum %d: %w", balance, s.cfg.MinStartBalance, ErrInsufficientBalance)
	}

	started := time.Now()
	if startAt != nil {
		started = *startAt
	}

	session := &models.Consultation{
		ID:                  uuid.NewString(),
		CustomerAccountID:   customerID,
		ConsultantAccountID: consultantID,
		ConsultType:         consultType,
		Method:              method,
		FeePerUnit:          feePerUnit,
		StartedAt:           started,
		Status:              models.ConsultationStatusInProgress,
		CreatedAt:           time.Now(),
	}

	_, err = s.db.Exec(`
		INSERT INTO consultations (id, customer_account_id, consultant_account_id, consult_type, method, fee_per_unit, started_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.CustomerAccountID, session.ConsultantAccountID,
		session.ConsultType, session.Method, session.FeePerUnit,
		session.StartedAt, session.Status, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}

	log.Printf("[CONSULT] Session %s started: customer %s -> consultant %s, fee %d/unit",
		session.ID, customerID, consultantID, feePerUnit)
	return session, nil
}

// EndConsultation closes a session and bills it. Marking the session
// COMPLETED, debiting the customer (clamped at zero) and crediting the
// consultant are a single atomic unit.
func (s *ConsultationService) EndConsultation(sessionID, callerID string, endAt *time.Time) (*SessionClose, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var c models.Consultation
	err = tx.QueryRow(`
		SELECT id, customer_account_id, consultant_account_id, fee_per_unit, started_at, status
		FROM consultations
		WHERE id = $1
		FOR UPDATE`, sessionID).Scan(&c.ID, &c.CustomerAccountID, &c.ConsultantAccountID, &c.FeePerUnit, &c.StartedAt, &c.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if c.Status != models.ConsultationStatusInProgress {
		return nil, fmt.Errorf("session %s already %s: %w", sessionID, c.Status, ErrNotFound)
	}
	if callerID != c.CustomerAccountID && callerID != c.ConsultantAccountID {
		return nil, fmt.Errorf("caller %s not party to session %s: %w", callerID, sessionID, ErrForbidden)
	}

	ended := time.Now()
	if endAt != nil {
		ended = *endAt
	}

	duration, err := SessionDuration(c.StartedAt, ended)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	units := BillableUnits(duration, s.cfg.UnitSeconds)
	charge := SessionCharge(units, c.FeePerUnit)
	payout := ConsultantShare(charge, s.cfg.PayoutRate)

	result, err := tx.Exec(`
		UPDATE consultations
		SET ended_at = $1, duration_seconds = $2, billed_units = $3, charge = $4, payout = $5, status = $6
		WHERE id = $7 AND status = $8`,
		ended, duration, units, charge, payout,
		models.ConsultationStatusCompleted, sessionID, models.ConsultationStatusInProgress)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("session %s already closed: %w", sessionID, ErrNotFound)
	}

	// Lock the two accounts in consistent order to prevent deadlocks
	// between concurrent session closes.
	var customerBalance int64
	if c.CustomerAccountID < c.ConsultantAccountID {
		customerBalance, err = s.ledger.DebitTx(tx, c.CustomerAccountID, sessionID, models.EntryTypeConsultCharge, charge, true)
		if err == nil {
			_, err = s.ledger.CreditTx(tx, c.ConsultantAccountID, sessionID, models.EntryTypeConsultPayout, payout)
		}
	} else {
		_, err = s.ledger.CreditTx(tx, c.ConsultantAccountID, sessionID, models.EntryTypeConsultPayout, payout)
		if err == nil {
			customerBalance, err = s.ledger.DebitTx(tx, c.CustomerAccountID, sessionID, models.EntryTypeConsultCharge, charge, true)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	c.EndedAt = &ended
	c.DurationSeconds = duration
	c.BilledUnits = units
	c.Charge = charge
	c.Payout = payout
	c.Status = models.ConsultationStatusCompleted

	log.Printf("[CONSULT] Session %s completed: %ds, %d units, charge %d, payout %d",
		sessionID, duration, units, charge, payout)

	return &SessionClose{
		Session:          &c,
		DurationSeconds:  duration,
		Duration:         FormatDuration(duration),
		Units:            units,
		Charge:           charge,
		ConsultantPayout: payout,
		CustomerBalance:  customerBalance,
	}, nil
}

// GetConsultation returns a session visible to one of its parties.
func (s *ConsultationService) GetConsultation(sessionID, callerID string) (*models.Consultation, error) {
	var c models.Consultation
	err := s.db.QueryRow(`
		SELECT id, customer_account_id, consultant_account_id, consult_type, method, fee_per_unit,
			started_at, ended_at, duration_seconds, billed_units, charge, payout, status, created_at
		FROM consultations WHERE id = $1`, sessionID).
		Scan(&c.ID, &c.CustomerAccountID, &c.ConsultantAccountID, &c.ConsultType, &c.Method, &c.FeePerUnit,
			&c.StartedAt, &c.EndedAt, &c.DurationSeconds, &c.BilledUnits, &c.Charge, &c.Payout, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if callerID != c.CustomerAccountID && callerID != c.ConsultantAccountID {
		return nil, fmt.Errorf("caller %s not party to session %s: %w", callerID, sessionID, ErrForbidden)
	}
	return &c, nil
}

// UpdateConsultantFee sets the consultant's current per-unit fee. Open
// sessions keep their snapshotted fee.
func (s *ConsultationService) UpdateConsultantFee(accountID string, feePerUnit int64) error {
	if feePerUnit <= 0 {
		return fmt.Errorf("non-positive fee %d: %w", feePerUnit, ErrInvalidOperation)
	}
	_, err := s.db.Exec(`
		INSERT INTO consultants (account_id, fee_per_unit, active, updated_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (account_id) DO UPDATE
		SET fee_per_unit = EXCLUDED.fee_per_unit, updated_at = NOW()`,
		accountID, feePerUnit)
	if err != nil {
		return fmt.Errorf("update fee: %w", err)
	}
	return nil
}
