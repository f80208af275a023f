package services

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSettlementService_ComputeSettlement(t *testing.T) {
	rate := decimal.RequireFromString("0.70")

	t.Run("replaces the month inside one transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db, 30)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM settlement_snapshots WHERE month = \\$1").
			WithArgs("2026-02").
			WillReturnResult(sqlmock.NewResult(0, 2))

		mock.ExpectQuery("SELECT id, consultant_account_id, billed_units, charge FROM consultations").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "consultant_account_id", "billed_units", "charge"}).
				AddRow("sess-1", "1000000002", 2, 20).
				AddRow("sess-2", "1000000002", 4, 40).
				AddRow("sess-3", "1000000005", 1, 15))

		// Consultant 1000000002: 6 units = 180s, charge 60, payout 14+28
		mock.ExpectQuery("INSERT INTO settlement_snapshots").
			WithArgs("1000000002", "2026-02", int64(6), int64(180), int64(60), int64(42), "0.7", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectExec("INSERT INTO settlement_items").
			WithArgs(11, "sess-1", int64(2), int64(20), int64(14)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO settlement_items").
			WithArgs(11, "sess-2", int64(4), int64(40), int64(28)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// Consultant 1000000005: 1 unit = 30s, charge 15, payout floor(10.5)
		mock.ExpectQuery("INSERT INTO settlement_snapshots").
			WithArgs("1000000005", "2026-02", int64(1), int64(30), int64(15), int64(10), "0.7", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectExec("INSERT INTO settlement_items").
			WithArgs(12, "sess-3", int64(1), int64(15), int64(10)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO settlement_summaries").
			WithArgs("2026-02", int64(2), int64(3), int64(75), int64(52), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		run, err := service.ComputeSettlement("2026-02", rate)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), run.ConsultantCount)
		assert.Equal(t, int64(3), run.TotalSessions)
		assert.Equal(t, int64(75), run.TotalCharge)
		assert.Equal(t, int64(52), run.TotalPayout)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty month settles cleanly", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db, 30)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM settlement_snapshots WHERE month = \\$1").
			WithArgs("2026-03").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT id, consultant_account_id, billed_units, charge FROM consultations").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "consultant_account_id", "billed_units", "charge"}))
		mock.ExpectExec("INSERT INTO settlement_summaries").
			WithArgs("2026-03", int64(0), int64(0), int64(0), int64(0), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		run, err := service.ComputeSettlement("2026-03", rate)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), run.ConsultantCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed snapshot clear aborts the run", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db, 30)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM settlement_snapshots WHERE month = \\$1").
			WithArgs("2026-02").
			WillReturnError(errors.New("relation locked"))
		mock.ExpectRollback()

		_, err = service.ComputeSettlement("2026-02", rate)
		assert.True(t, errors.Is(err, ErrConsistency))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed month rejected", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db, 30)

		_, err = service.ComputeSettlement("Feb-2026", rate)
		assert.True(t, errors.Is(err, ErrInvalidOperation))
	})
}

func TestSettlementService_GetSettlement(t *testing.T) {
	t.Run("snapshot with contributing sessions", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db, 30)

		created := time.Now()
		mock.ExpectQuery("FROM settlement_snapshots WHERE consultant_account_id = \\$1 AND month = \\$2").
			WithArgs("1000000002", "2026-02").
			WillReturnRows(sqlmock.NewRows([]string{"id", "consultant_account_id", "month", "session_count", "billed_seconds", "total_charge", "total_payout", "payout_rate", "created_at"}).
				AddRow(11, "1000000002", "2026-02", 2, 180, 60, 42, "0.7", created))

		started := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery("FROM settlement_items i JOIN consultations c").
			WithArgs(11).
			WillReturnRows(sqlmock.NewRows([]string{"consultation_id", "started_at", "billed_units", "charge", "payout"}).
				AddRow("sess-1", started, 2, 20, 14).
				AddRow("sess-2", started.Add(time.Hour), 4, 40, 28))

		snap, details, err := service.GetSettlement("1000000002", "2026-02")
		assert.NoError(t, err)
		assert.Equal(t, int64(180), snap.BilledSeconds)
		assert.Len(t, details, 2)
		assert.Equal(t, int64(60), details[0].BilledSeconds)
		assert.Equal(t, int64(120), details[1].BilledSeconds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing month", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewSettlementService(db, 30)

		mock.ExpectQuery("FROM settlement_snapshots").
			WithArgs("1000000002", "2026-04").
			WillReturnError(sql.ErrNoRows)

		_, _, err = service.GetSettlement("1000000002", "2026-04")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
