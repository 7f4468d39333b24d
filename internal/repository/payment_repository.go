package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fansignhq/fansign-backend/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) DB() *sql.DB {
	return r.db
}

const paymentColumns = `id, user_id, provider, provider_track_id, COALESCE(order_id, ''), amount_cents, credits_purchased, status, COALESCE(raw_payload, ''), created_at, updated_at`

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (user_id, provider, provider_track_id, order_id, amount_cents, credits_purchased, status, raw_payload)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''))
RETURNING id, created_at, updated_at`
	row := r.db.QueryRowContext(ctx, query,
		payment.UserID, payment.Provider, payment.ProviderTrackID, payment.OrderID,
		payment.AmountCents, payment.CreditsPurchased, payment.Status, payment.RawPayload)
	if err := row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByProviderTrack(ctx context.Context, provider, trackID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND provider_track_id = $2 LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, provider, trackID)
	var p models.Payment
	if err := row.Scan(&p.ID, &p.UserID, &p.Provider, &p.ProviderTrackID, &p.OrderID, &p.AmountCents, &p.CreditsPurchased, &p.Status, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

// MarkFailed moves a pending payment to failed. Terminal states are left
// untouched.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID int64, payload string) error {
	const query = `
UPDATE payments SET status = $1, raw_payload = $2, updated_at = NOW()
WHERE id = $3 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, models.PaymentFailed, payload, paymentID, models.PaymentPending); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

func (r *PaymentRepository) List(ctx context.Context, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Provider, &p.ProviderTrackID, &p.OrderID, &p.AmountCents, &p.CreditsPurchased, &p.Status, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment list: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
