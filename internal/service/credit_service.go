package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/repository"
)

var ErrInsufficientCredits = errors.New("insufficient credits")
var ErrUserNotFound = errors.New("user not found")

// CreditService owns the per-user balance and the append-only transaction
// trail. Every balance mutation and its ledger entry commit together.
type CreditService struct {
	users        *repository.UserRepository
	transactions *repository.TransactionRepository
}

func NewCreditService(users *repository.UserRepository, transactions *repository.TransactionRepository) *CreditService {
	return &CreditService{users: users, transactions: transactions}
}

// GetOrCreateBalance returns the user's balance, creating a zero-credit row
// on first contact. The reported bool is true when a new row was created.
func (s *CreditService) GetOrCreateBalance(ctx context.Context, userID string) (int, bool, error) {
	created, err := s.users.EnsureExists(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if user == nil {
		return 0, false, ErrUserNotFound
	}
	return user.Credits, created, nil
}

// Balance returns the current balance without creating a row.
func (s *CreditService) Balance(ctx context.Context, userID string) (int, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, ErrUserNotFound
	}
	return user.Credits, nil
}

// Deduct removes amount credits if the balance covers it. The check and the
// decrement are one conditional UPDATE, so concurrent deductions cannot both
// pass the check; the debit ledger entry commits in the same transaction.
// Returns the remaining balance.
func (s *CreditService) Deduct(ctx context.Context, userID string, amount int, txType models.TransactionType, details string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduct amount must be positive")
	}

	tx, err := s.users.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var remaining int
	row := tx.QueryRowContext(ctx, `
UPDATE users SET credits = credits - $1, updated_at = NOW()
WHERE id = $2 AND credits >= $1
RETURNING credits`, amount, userID)
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the user is missing or the balance is short.
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT TRUE FROM users WHERE id = $1`, userID).Scan(&exists); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return 0, ErrUserNotFound
				}
				return 0, fmt.Errorf("check user: %w", err)
			}
			return 0, ErrInsufficientCredits
		}
		return 0, fmt.Errorf("deduct credits: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO credit_transactions (user_id, amount, type, details)
VALUES ($1, $2, $3, NULLIF($4, ''))`, userID, -amount, txType, details); err != nil {
		return 0, fmt.Errorf("insert debit transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit deduct: %w", err)
	}
	return remaining, nil
}

// AddCredits grants amount credits and records the ledger entry, both in one
// transaction. Idempotency is the caller's responsibility (payment completion
// guards its own status transition). Returns the new balance.
func (s *CreditService) AddCredits(ctx context.Context, userID string, amount int, txType models.TransactionType, keyValue, details string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}

	tx, err := s.users.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var balance int
	row := tx.QueryRowContext(ctx, `
UPDATE users SET credits = credits + $1, updated_at = NOW()
WHERE id = $2
RETURNING credits`, amount, userID)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("add credits: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO credit_transactions (user_id, amount, type, key_value, details)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`, userID, amount, txType, keyValue, details); err != nil {
		return 0, fmt.Errorf("insert credit transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credit grant: %w", err)
	}
	return balance, nil
}

// Adjust applies a signed admin adjustment. Negative adjustments use the
// conditional deduct path so the balance can never go below zero.
func (s *CreditService) Adjust(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount == 0 {
		return 0, fmt.Errorf("adjustment amount cannot be zero")
	}
	if amount > 0 {
		return s.AddCredits(ctx, userID, amount, models.TransactionAdminAdjustment, "", reason)
	}
	return s.Deduct(ctx, userID, -amount, models.TransactionAdminAdjustment, reason)
}

// History returns the most recent ledger entries for a user.
func (s *CreditService) History(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	return s.transactions.ListByUser(ctx, userID, limit)
}
