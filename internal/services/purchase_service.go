package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/consultpoint/backend/internal/models"
	"github.com/consultpoint/backend/internal/payment"
)

// PurchaseService turns paid money into point credits. The gateway verdict
// always comes first; the balance is only credited inside the same database
// transaction that marks the purchase row COMPLETED, so the pending ->
// completed transition triggers exactly one credit.
type PurchaseService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *PointLedgerService
	oracle payment.Oracle
}

func NewPurchaseService(db *sql.DB, redisClient *redis.Client, ledger *PointLedgerService, oracle payment.Oracle) *PurchaseService {
	return &PurchaseService{
		db:     db,
		redis:  redisClient,
		ledger: ledger,
		oracle: oracle,
	}
}

// PurchaseResult reports the outcome of a completed purchase.
type PurchaseResult struct {
	Purchase *models.Purchase `json:"purchase"`
	Balance  int64            `json:"balance"`
}

// Purchase charges moneyAmount through the gateway and credits pointAmount
// on success. A caller-supplied paymentRef makes the call idempotent: a
// replay of a completed reference returns the recorded outcome without
// touching the gateway or the balance again, while a failed or stalled
// reference retries authorization under the same reference so a timed-out
// attempt never needs a fresh key.
func (s *PurchaseService) Purchase(ctx context.Context, accountID string, moneyAmount, pointAmount int64, method, paymentRef string) (*PurchaseResult, error) {
	if moneyAmount <= 0 || pointAmount <= 0 {
		return nil, fmt.Errorf("non-positive amounts: %w", ErrInvalidOperation)
	}
	if paymentRef == "" {
		paymentRef = uuid.NewString()
	}

	if existing, err := s.fetchPurchase(paymentRef); err == nil {
		if existing.AccountID != accountID {
			return nil, fmt.Errorf("payment ref %s belongs to another account: %w", paymentRef, ErrForbidden)
		}
		switch existing.Status {
		case models.PurchaseStatusCompleted:
			log.Printf("[PURCHASE] Duplicate payment ref %s already completed", paymentRef)
			balance, err := s.ledger.GetBalance(accountID)
			if err != nil {
				return nil, err
			}
			return &PurchaseResult{Purchase: existing, Balance: balance}, nil
		case models.PurchaseStatusPending, models.PurchaseStatusFailed:
			log.Printf("[PURCHASE] Retrying ref %s, last status: %s", paymentRef, existing.Status)
			if existing.Status == models.PurchaseStatusFailed {
				if _, err := s.db.Exec(`
					UPDATE purchases SET status = $1 WHERE payment_ref = $2 AND status = $3`,
					models.PurchaseStatusPending, paymentRef, models.PurchaseStatusFailed); err != nil {
					return nil, fmt.Errorf("reopen purchase %s: %w", paymentRef, err)
				}
			}
			return s.authorizeAndComplete(ctx, existing)
		default:
			return nil, fmt.Errorf("payment ref %s already %s: %w", paymentRef, existing.Status, ErrInvalidOperation)
		}
	}

	// Guard against a concurrent double-submit of the same reference.
	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, "purchase:ref:"+paymentRef, accountID, 10*time.Minute).Result()
		if err == nil && !ok {
			return nil, fmt.Errorf("payment ref %s already in flight: %w", paymentRef, ErrInvalidOperation)
		}
	}

	purchase := &models.Purchase{
		PaymentRef:  paymentRef,
		AccountID:   accountID,
		MoneyAmount: moneyAmount,
		PointAmount: pointAmount,
		Method:      method,
		Status:      models.PurchaseStatusPending,
		CreatedAt:   time.Now(),
	}

	err := s.db.QueryRow(`
		INSERT INTO purchases (payment_ref, account_id, money_amount, point_amount, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		purchase.PaymentRef, purchase.AccountID, purchase.MoneyAmount, purchase.PointAmount,
		purchase.Method, purchase.Status, purchase.CreatedAt).Scan(&purchase.ID)
	if err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	return s.authorizeAndComplete(ctx, purchase)
}

// authorizeAndComplete drives the gateway for a pending purchase and, on
// approval, flips it COMPLETED and credits the points in one transaction.
// The PENDING guard on the status flip keeps the credit exactly-once even
// when retries of the same reference race. The balance must never be
// credited before the oracle verdict is known.
func (s *PurchaseService) authorizeAndComplete(ctx context.Context, purchase *models.Purchase) (*PurchaseResult, error) {
	_, err := s.oracle.Authorize(ctx, payment.AuthorizationRequest{
		PaymentRef:  purchase.PaymentRef,
		AccountID:   purchase.AccountID,
		MoneyAmount: purchase.MoneyAmount,
		Method:      purchase.Method,
	})
	if err != nil {
		s.markPurchase(purchase.PaymentRef, models.PurchaseStatusFailed)
		s.releaseRef(ctx, purchase.PaymentRef)
		switch {
		case errors.Is(err, payment.ErrTimeout):
			return nil, fmt.Errorf("ref %s: %w", purchase.PaymentRef, ErrPaymentTimeout)
		case errors.Is(err, payment.ErrDeclined):
			return nil, fmt.Errorf("ref %s: %w", purchase.PaymentRef, ErrPaymentFailed)
		default:
			return nil, fmt.Errorf("ref %s: %v: %w", purchase.PaymentRef, err, ErrPaymentFailed)
		}
	}

	// Completion and credit are one atomic unit.
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	completedAt := time.Now()
	result, err := tx.Exec(`
		UPDATE purchases SET status = $1, completed_at = $2
		WHERE payment_ref = $3 AND status = $4`,
		models.PurchaseStatusCompleted, completedAt, purchase.PaymentRef, models.PurchaseStatusPending)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("purchase %s no longer pending: %w", purchase.PaymentRef, ErrInvalidOperation)
	}

	balance, err := s.ledger.CreditTx(tx, purchase.AccountID, purchase.PaymentRef, models.EntryTypePurchase, purchase.PointAmount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	purchase.Status = models.PurchaseStatusCompleted
	purchase.CompletedAt = &completedAt
	log.Printf("[PURCHASE] Completed ref %s: account %s credited %d points", purchase.PaymentRef, purchase.AccountID, purchase.PointAmount)
	return &PurchaseResult{Purchase: purchase, Balance: balance}, nil
}

// releaseRef clears the in-flight marker so a failed reference can be
// retried without waiting out the Redis TTL.
func (s *PurchaseService) releaseRef(ctx context.Context, paymentRef string) {
	if s.redis != nil {
		s.redis.Del(ctx, "purchase:ref:"+paymentRef)
	}
}

// CancelPurchase reverses a completed purchase exactly once. The status
// flip and the reversing debit commit together or not at all.
func (s *PurchaseService) CancelPurchase(accountID, paymentRef string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var pointAmount int64
	var status string
	err = tx.QueryRow(`
		SELECT point_amount, status FROM purchases
		WHERE payment_ref = $1 AND account_id = $2
		FOR UPDATE`, paymentRef, accountID).Scan(&pointAmount, &status)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("purchase %s: %w", paymentRef, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	if status != models.PurchaseStatusCompleted {
		return 0, fmt.Errorf("purchase %s is %s, not COMPLETED: %w", paymentRef, status, ErrInvalidOperation)
	}

	if _, err := tx.Exec(`
		UPDATE purchases SET status = $1 WHERE payment_ref = $2`,
		models.PurchaseStatusCancelled, paymentRef); err != nil {
		return 0, err
	}

	balance, err := s.ledger.DebitTx(tx, accountID, paymentRef, models.EntryTypePurchaseReversal, pointAmount, false)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Printf("[PURCHASE] Cancelled ref %s: account %s debited %d points", paymentRef, accountID, pointAmount)
	return balance, nil
}

func (s *PurchaseService) fetchPurchase(paymentRef string) (*models.Purchase, error) {
	var p models.Purchase
	err := s.db.QueryRow(`
		SELECT id, payment_ref, account_id, money_amount, point_amount, method, status, created_at, completed_at
		FROM purchases WHERE payment_ref = $1`, paymentRef).
		Scan(&p.ID, &p.PaymentRef, &p.AccountID, &p.MoneyAmount, &p.PointAmount, &p.Method, &p.Status, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PurchaseService) markPurchase(paymentRef, status string) {
	if _, err := s.db.Exec(`UPDATE purchases SET status = $1 WHERE payment_ref = $2`, status, paymentRef); err != nil {
		log.Printf("[PURCHASE] Failed to mark %s as %s: %v", paymentRef, status, err)
	}
}
