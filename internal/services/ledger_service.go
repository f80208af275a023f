package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/consultpoint/backend/internal/models"
)

// PointLedgerService owns every mutation of the cached account balance.
// All multi-step mutations run inside one database transaction, lock the
// touched account rows with SELECT ... FOR UPDATE and bump an optimistic
// version, so two concurrent debits cannot both pass a balance check
// against a stale read.
type PointLedgerService struct {
	db *sql.DB
}

func NewPointLedgerService(db *sql.DB) *PointLedgerService {
	return &PointLedgerService{db: db}
}

// GetBalance returns the cached balance of an active account.
func (s *PointLedgerService) GetBalance(accountID string) (int64, error) {
	var balance int64
	var status string
	err := s.db.QueryRow(`
		SELECT balance, status FROM accounts WHERE account_id = $1`,
		accountID).Scan(&balance, &status)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// DeriveBalance recomputes the balance from the two event ledgers:
// completed purchase credits minus completed consultation charges. Pure
// read, absent rows count as zero, integer sums throughout.
func (s *PointLedgerService) DeriveBalance(accountID string) (int64, error) {
	var derived int64
	err := s.db.QueryRow(`
		SELECT
			COALESCE((SELECT SUM(point_amount) FROM purchases
				WHERE account_id = $1 AND status = 'COMPLETED'), 0)
			-
			COALESCE((SELECT SUM(charge) FROM consultations
				WHERE customer_account_id = $1 AND status = 'COMPLETED'), 0)`,
		accountID).Scan(&derived)
	if err != nil {
		return 0, fmt.Errorf("derive balance for %s: %w", accountID, err)
	}
	return derived, nil
}

// Transfer moves points between two accounts atomically and returns the
// sender's remaining balance.
func (s *PointLedgerService) Transfer(fromAccountID, toAccountID, ref string, amount int64) (int64, error) {
	if fromAccountID == toAccountID {
		return 0, fmt.Errorf("self-transfer: %w", ErrInvalidOperation)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("non-positive amount %d: %w", amount, ErrInvalidOperation)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	remaining, err := s.TransferTx(tx, fromAccountID, toAccountID, ref, amount)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}

// TransferTx performs the transfer inside an existing transaction.
func (s *PointLedgerService) TransferTx(tx *sql.Tx, fromAccountID, toAccountID, ref string, amount int64) (int64, error) {
	// Lock accounts in consistent order to prevent deadlocks
	firstLock, secondLock := fromAccountID, toAccountID
	if fromAccountID > toAccountID {
		firstLock, secondLock = toAccountID, fromAccountID
	}

	fromAccount, err := s.lockAccount(tx, firstLock)
	if err != nil {
		return 0, err
	}

	toAccount, err := s.lockAccount(tx, secondLock)
	if err != nil {
		return 0, err
	}

	// Determine which locked account is sender/receiver
	if firstLock != fromAccountID {
		fromAccount, toAccount = toAccount, fromAccount
	}

	if fromAccount.Balance < amount {
		return 0, fmt.Errorf("need %d, have %d: %w", amount, fromAccount.Balance, ErrInsufficientBalance)
	}

	if err := s.createEntry(tx, ref, models.EntryTypeTransfer, fromAccount.AccountID, -amount, fromAccount.Balance-amount); err != nil {
		return 0, err
	}

	if err := s.createEntry(tx, ref, models.EntryTypeTransfer, toAccount.AccountID, amount, toAccount.Balance+amount); err != nil {
		return 0, err
	}

	if err := s.updateAccountBalance(tx, fromAccount.AccountID, fromAccount.Balance-amount, fromAccount.Version); err != nil {
		return 0, err
	}

	if err := s.updateAccountBalance(tx, toAccount.AccountID, toAccount.Balance+amount, toAccount.Version); err != nil {
		return 0, err
	}

	return fromAccount.Balance - amount, nil
}

// CreditTx adds points to an account inside an existing transaction.
func (s *PointLedgerService) CreditTx(tx *sql.Tx, accountID, ref, entryType string, amount int64) (int64, error) {
	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		return 0, err
	}

	newBalance := account.Balance + amount
	if err := s.createEntry(tx, ref, entryType, account.AccountID, amount, newBalance); err != nil {
		return 0, err
	}
	if err := s.updateAccountBalance(tx, account.AccountID, newBalance, account.Version); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// DebitTx removes points from an account inside an existing transaction.
// With clamp set the balance floors at zero instead of failing; otherwise
// an overdraw returns ErrInsufficientBalance and writes nothing.
func (s *PointLedgerService) DebitTx(tx *sql.Tx, accountID, ref, entryType string, amount int64, clamp bool) (int64, error) {
	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		return 0, err
	}

	debit := amount
	if account.Balance < amount {
		if !clamp {
			return 0, fmt.Errorf("need %d, have %d: %w", amount, account.Balance, ErrInsufficientBalance)
		}
		debit = account.Balance
	}

	newBalance := account.Balance - debit
	if err := s.createEntry(tx, ref, entryType, account.AccountID, -debit, newBalance); err != nil {
		return 0, err
	}
	if err := s.updateAccountBalance(tx, account.AccountID, newBalance, account.Version); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListEntries returns the most recent point entries for an account.
func (s *PointLedgerService) ListEntries(accountID string, limit int) ([]models.PointEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, ref, entry_type, account_id, amount, balance_after, created_at
		FROM point_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.PointEntry
	for rows.Next() {
		var e models.PointEntry
		if err := rows.Scan(&e.ID, &e.Ref, &e.EntryType, &e.AccountID, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PointLedgerService) lockAccount(tx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT account_id, balance, status, version, updated_at
		FROM accounts
		WHERE account_id = $1
		FOR UPDATE`, accountID).Scan(&account.AccountID, &account.Balance, &account.Status, &account.Version, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *PointLedgerService) createEntry(tx *sql.Tx, ref, entryType, accountID string, amount int64, balanceAfter int64) error {
	_, err := tx.Exec(`
		INSERT INTO point_entries (ref, entry_type, account_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ref, entryType, accountID, amount, balanceAfter, time.Now())
	return err
}

func (s *PointLedgerService) updateAccountBalance(tx *sql.Tx, accountID string, newBalance int64, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE account_id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s", accountID)
	}

	return nil
}
