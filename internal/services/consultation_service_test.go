package services

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/consultpoint/backend/internal/config"
	"github.com/consultpoint/backend/internal/models"
)

func newConsultationFixture(t *testing.T) (*ConsultationService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	cfg := &config.BillingConfig{
		UnitSeconds:     30,
		PayoutRate:      decimal.RequireFromString("0.70"),
		MinStartBalance: 10,
	}
	return NewConsultationService(db, NewPointLedgerService(db), cfg), mock, func() { db.Close() }
}

func TestConsultationService_StartConsultation(t *testing.T) {
	customerID := "1000000001"
	consultantID := "1000000002"

	t.Run("snapshots the consultant fee", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		mock.ExpectQuery("SELECT c.fee_per_unit, c.active, a.status FROM consultants c JOIN accounts a").
			WithArgs(consultantID).
			WillReturnRows(sqlmock.NewRows([]string{"fee_per_unit", "active", "status"}).
				AddRow(10, true, "ACTIVE"))

		mock.ExpectQuery("SELECT balance, status FROM accounts").
			WithArgs(customerID).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "status"}).AddRow(100, "ACTIVE"))

		mock.ExpectExec("INSERT INTO consultations").
			WithArgs(sqlmock.AnyArg(), customerID, consultantID, "chat", "app", int64(10),
				sqlmock.AnyArg(), models.ConsultationStatusInProgress, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		session, err := service.StartConsultation(customerID, consultantID, "chat", "app", nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(10), session.FeePerUnit)
		assert.Equal(t, models.ConsultationStatusInProgress, session.Status)
		assert.NotEmpty(t, session.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("self consultation rejected", func(t *testing.T) {
		service, _, closeDB := newConsultationFixture(t)
		defer closeDB()

		_, err := service.StartConsultation(customerID, customerID, "chat", "app", nil)
		assert.True(t, errors.Is(err, ErrInvalidOperation))
	})

	t.Run("unknown consultant", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		mock.ExpectQuery("SELECT c.fee_per_unit, c.active, a.status FROM consultants c JOIN accounts a").
			WithArgs(consultantID).
			WillReturnError(sql.ErrNoRows)

		_, err := service.StartConsultation(customerID, consultantID, "chat", "app", nil)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("inactive consultant", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		mock.ExpectQuery("SELECT c.fee_per_unit, c.active, a.status FROM consultants c JOIN accounts a").
			WithArgs(consultantID).
			WillReturnRows(sqlmock.NewRows([]string{"fee_per_unit", "active", "status"}).
				AddRow(10, false, "ACTIVE"))

		_, err := service.StartConsultation(customerID, consultantID, "chat", "app", nil)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("balance below minimum", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		mock.ExpectQuery("SELECT c.fee_per_unit, c.active, a.status FROM consultants c JOIN accounts a").
			WithArgs(consultantID).
			WillReturnRows(sqlmock.NewRows([]string{"fee_per_unit", "active", "status"}).
				AddRow(10, true, "ACTIVE"))

		mock.ExpectQuery("SELECT balance, status FROM accounts").
			WithArgs(customerID).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "status"}).AddRow(9, "ACTIVE"))

		_, err := service.StartConsultation(customerID, consultantID, "chat", "app", nil)
		assert.True(t, errors.Is(err, ErrInsufficientBalance))
	})
}

func TestConsultationService_EndConsultation(t *testing.T) {
	customerID := "1000000001"
	consultantID := "1000000002"
	sessionID := "sess-abc"

	sessionRows := func(started time.Time) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "customer_account_id", "consultant_account_id", "fee_per_unit", "started_at", "status"}).
			AddRow(sessionID, customerID, consultantID, 10, started, models.ConsultationStatusInProgress)
	}

	t.Run("bills and settles atomically", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		started := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		ended := started.Add(45 * time.Second) // 2 units of 30s, charge 20, payout 14

		mock.ExpectBegin()
		mock.ExpectQuery("FROM consultations WHERE id = \\$1 FOR UPDATE").
			WithArgs(sessionID).
			WillReturnRows(sessionRows(started))

		mock.ExpectExec("UPDATE consultations SET ended_at").
			WithArgs(ended, int64(45), int64(2), int64(20), int64(14),
				models.ConsultationStatusCompleted, sessionID, models.ConsultationStatusInProgress).
			WillReturnResult(sqlmock.NewResult(0, 1))

		// Customer account sorts first, so the debit runs first
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(customerID).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "status", "version", "updated_at"}).
				AddRow(customerID, 100, "ACTIVE", 1, time.Now()))
		mock.ExpectExec("INSERT INTO point_entries").
			WithArgs(sessionID, models.EntryTypeConsultCharge, customerID, int64(-20), int64(80), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(80), sqlmock.AnyArg(), customerID, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("FOR UPDATE").
			WithArgs(consultantID).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "status", "version", "updated_at"}).
				AddRow(consultantID, 0, "ACTIVE", 1, time.Now()))
		mock.ExpectExec("INSERT INTO point_entries").
			WithArgs(sessionID, models.EntryTypeConsultPayout, consultantID, int64(14), int64(14), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(14), sqlmock.AnyArg(), consultantID, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		result, err := service.EndConsultation(sessionID, customerID, &ended)
		assert.NoError(t, err)
		assert.Equal(t, int64(45), result.DurationSeconds)
		assert.Equal(t, "00:00:45", result.Duration)
		assert.Equal(t, int64(2), result.Units)
		assert.Equal(t, int64(20), result.Charge)
		assert.Equal(t, int64(14), result.ConsultantPayout)
		assert.Equal(t, int64(80), result.CustomerBalance)
		assert.Equal(t, models.ConsultationStatusCompleted, result.Session.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit clamps a low customer balance at zero", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		started := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		ended := started.Add(45 * time.Second)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM consultations WHERE id = \\$1 FOR UPDATE").
			WithArgs(sessionID).
			WillReturnRows(sessionRows(started))

		mock.ExpectExec("UPDATE consultations SET ended_at").
			WithArgs(ended, int64(45), int64(2), int64(20), int64(14),
				models.ConsultationStatusCompleted, sessionID, models.ConsultationStatusInProgress).
			WillReturnResult(sqlmock.NewResult(0, 1))

		// Customer only holds 5 points, the debit floors at zero
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(customerID).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "status", "version", "updated_at"}).
				AddRow(customerID, 5, "ACTIVE", 1, time.Now()))
		mock.ExpectExec("INSERT INTO point_entries").
			WithArgs(sessionID, models.EntryTypeConsultCharge, customerID, int64(-5), int64(0), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(0), sqlmock.AnyArg(), customerID, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// The consultant payout is unchanged
		mock.ExpectQuery("FOR UPDATE").
			WithArgs(consultantID).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "balance", "status", "version", "updated_at"}).
				AddRow(consultantID, 0, "ACTIVE", 1, time.Now()))
		mock.ExpectExec("INSERT INTO point_entries").
			WithArgs(sessionID, models.EntryTypeConsultPayout, consultantID, int64(14), int64(14), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(14), sqlmock.AnyArg(), consultantID, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		result, err := service.EndConsultation(sessionID, customerID, &ended)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), result.CustomerBalance)
		assert.Equal(t, int64(14), result.ConsultantPayout)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("end before start rolls back", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		started := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		ended := started.Add(-time.Second)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM consultations WHERE id = \\$1 FOR UPDATE").
			WithArgs(sessionID).
			WillReturnRows(sessionRows(started))
		mock.ExpectRollback()

		_, err := service.EndConsultation(sessionID, customerID, &ended)
		assert.True(t, errors.Is(err, ErrInvalidInterval))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("caller must be a party", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		started := time.Now().Add(-time.Minute)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM consultations WHERE id = \\$1 FOR UPDATE").
			WithArgs(sessionID).
			WillReturnRows(sessionRows(started))
		mock.ExpectRollback()

		_, err := service.EndConsultation(sessionID, "3000000003", nil)
		assert.True(t, errors.Is(err, ErrForbidden))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed session cannot be re-ended", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM consultations WHERE id = \\$1 FOR UPDATE").
			WithArgs(sessionID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "customer_account_id", "consultant_account_id", "fee_per_unit", "started_at", "status"}).
				AddRow(sessionID, customerID, consultantID, 10, time.Now().Add(-time.Hour), models.ConsultationStatusCompleted))
		mock.ExpectRollback()

		_, err := service.EndConsultation(sessionID, customerID, nil)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session", func(t *testing.T) {
		service, mock, closeDB := newConsultationFixture(t)
		defer closeDB()

		mock.ExpectBegin()
		mock.ExpectQuery("FROM consultations WHERE id = \\$1 FOR UPDATE").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := service.EndConsultation("missing", customerID, nil)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConsultationService_UpdateConsultantFee(t *testing.T) {
	service, mock, closeDB := newConsultationFixture(t)
	defer closeDB()

	t.Run("upserts the fee", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO consultants").
			WithArgs("1000000002", int64(25)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.UpdateConsultantFee("1000000002", 25)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a non-positive fee", func(t *testing.T) {
		err := service.UpdateConsultantFee("1000000002", 0)
		assert.True(t, errors.Is(err, ErrInvalidOperation))
	})
}
