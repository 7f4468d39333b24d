package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/fansignhq/fansign-backend/internal/config"
	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/notify"
	"github.com/fansignhq/fansign-backend/internal/oxapay"
	"github.com/fansignhq/fansign-backend/internal/repository"
)

var ErrUnknownPackage = errors.New("invalid package id")
var ErrPaymentNotFound = errors.New("payment not found")
var ErrInvalidSignature = errors.New("invalid signature")
var ErrCardPaymentsDisabled = errors.New("card payments are not configured")

type PaymentService struct {
	cfg      config.Config
	log      *slog.Logger
	payments *repository.PaymentRepository
	users    *repository.UserRepository
	oxapay   *oxapay.Client
	notifier *notify.Notifier
}

func NewPaymentService(cfg config.Config, log *slog.Logger, payments *repository.PaymentRepository, users *repository.UserRepository, oxa *oxapay.Client, notifier *notify.Notifier) *PaymentService {
	if cfg.StripeEnabled() {
		stripe.Key = cfg.StripeSecretKey
	}
	return &PaymentService{
		cfg:      cfg,
		log:      log,
		payments: payments,
		users:    users,
		oxapay:   oxa,
		notifier: notifier,
	}
}

type CryptoPaymentResult struct {
	PayLink string
	TrackID int64
	OrderID string
	Amount  float64
	Credits int
}

// CreateCryptoPayment opens an OxaPay invoice for a fixed credit package and
// records the pending payment keyed by the provider track id.
func (s *PaymentService) CreateCryptoPayment(ctx context.Context, userID, packageID string) (*CryptoPaymentResult, error) {
	pkg := models.PackageByID(packageID)
	if pkg == nil {
		return nil, ErrUnknownPackage
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	orderID := "order_" + uuid.NewString()
	amount := float64(pkg.Price) / 100

	resp, err := s.oxapay.CreatePayment(ctx, oxapay.PaymentRequest{
		Amount:         amount,
		Currency:       "USD",
		LifeTime:       s.cfg.OxaPayLifetimeMin,
		FeePaidByPayer: 1,
		UnderPaidCover: 5,
		CallbackURL:    s.cfg.AppBaseURL + "/api/payments/callback",
		ReturnURL:      s.cfg.AppBaseURL + "/purchase?success=true",
		Description:    fmt.Sprintf("%s for %s", pkg.Name, displayName(user)),
		OrderID:        orderID,
	})
	if err != nil {
		return nil, fmt.Errorf("create oxapay payment: %w", err)
	}

	record := &models.Payment{
		UserID:           userID,
		Provider:         models.ProviderOxaPay,
		ProviderTrackID:  strconv.FormatInt(resp.TrackID, 10),
		OrderID:          orderID,
		AmountCents:      pkg.Price,
		CreditsPurchased: pkg.Credits,
		Status:           models.PaymentPending,
	}
	if err := s.payments.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	return &CryptoPaymentResult{
		PayLink: resp.PayLink,
		TrackID: resp.TrackID,
		OrderID: orderID,
		Amount:  amount,
		Credits: pkg.Credits,
	}, nil
}

type CardIntentResult struct {
	ClientSecret string
	Amount       int
	Credits      int
}

// CreateCardIntent opens a Stripe payment intent for a credit package. The
// user id and credit count ride along as metadata so the webhook can
// reconcile without extra lookups.
func (s *PaymentService) CreateCardIntent(ctx context.Context, userID, packageID string) (*CardIntentResult, error) {
	if !s.cfg.StripeEnabled() {
		return nil, ErrCardPaymentsDisabled
	}
	pkg := models.PackageByID(packageID)
	if pkg == nil {
		return nil, ErrUnknownPackage
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(int64(pkg.Price)),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(fmt.Sprintf("%s for %s", pkg.Name, displayName(user))),
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	params.AddMetadata("packageId", pkg.ID)
	params.AddMetadata("credits", strconv.Itoa(pkg.Credits))

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	record := &models.Payment{
		UserID:           userID,
		Provider:         models.ProviderStripe,
		ProviderTrackID:  pi.ID,
		AmountCents:      pkg.Price,
		CreditsPurchased: pkg.Credits,
		Status:           models.PaymentPending,
	}
	if err := s.payments.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	return &CardIntentResult{
		ClientSecret: pi.ClientSecret,
		Amount:       pkg.Price,
		Credits:      pkg.Credits,
	}, nil
}

// HandleOxaPayCallback verifies the callback HMAC and applies the payment
// state transition. Unverified payloads are rejected before any state is
// touched; duplicate deliveries of a completed payment are a no-op.
func (s *PaymentService) HandleOxaPayCallback(ctx context.Context, body []byte) error {
	var data oxapay.CallbackData
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("parse callback: %w", err)
	}
	if !s.oxapay.VerifyCallback(data) {
		return ErrInvalidSignature
	}

	payment, err := s.payments.FindByProviderTrack(ctx, models.ProviderOxaPay, data.TrackID.String())
	if err != nil {
		return fmt.Errorf("find payment: %w", err)
	}
	if payment == nil {
		return ErrPaymentNotFound
	}

	switch data.Status {
	case "Paid":
		return s.complete(ctx, payment, string(body))
	case "Expired", "Failed":
		if err := s.payments.MarkFailed(ctx, payment.ID, string(body)); err != nil {
			return err
		}
		return nil
	default:
		// Waiting / Confirming and friends carry no state change for us.
		s.log.Info("oxapay callback ignored", "trackId", data.TrackID.String(), "status", data.Status)
		return nil
	}
}

// HandleStripeWebhook verifies the webhook signature and applies the payment
// state transition. Only success and cancellation transition state:
// payment_intent.payment_failed is attempt-level, the customer can retry the
// same intent, so acting on it would strand a later success.
func (s *PaymentService) HandleStripeWebhook(ctx context.Context, body []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(body, sigHeader, s.cfg.StripeWebhookSecret)
	if err != nil {
		return ErrInvalidSignature
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.canceled":
	default:
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("parse payment intent: %w", err)
	}

	payment, err := s.payments.FindByProviderTrack(ctx, models.ProviderStripe, pi.ID)
	if err != nil {
		return fmt.Errorf("find payment: %w", err)
	}
	if payment == nil {
		return ErrPaymentNotFound
	}

	if event.Type == "payment_intent.canceled" {
		return s.payments.MarkFailed(ctx, payment.ID, string(event.Data.Raw))
	}
	return s.complete(ctx, payment, string(event.Data.Raw))
}

// complete transitions pending -> completed and grants the purchased credits
// exactly once. The transition is a conditional UPDATE: when a duplicate
// delivery races a completed payment, zero rows match and nothing is granted.
func (s *PaymentService) complete(ctx context.Context, payment *models.Payment, payload string) error {
	tx, err := s.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE payments SET status = $1, raw_payload = $2, updated_at = NOW()
WHERE id = $3 AND status = $4`,
		models.PaymentCompleted, payload, payment.ID, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete rows affected: %w", err)
	}
	if affected == 0 {
		// Already terminal; the credits were granted by the first delivery.
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE users SET credits = credits + $1, updated_at = NOW()
WHERE id = $2`, payment.CreditsPurchased, payment.UserID); err != nil {
		return fmt.Errorf("grant purchased credits: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO credit_transactions (user_id, amount, type, details)
VALUES ($1, $2, $3, $4)`,
		payment.UserID, payment.CreditsPurchased, models.TransactionPurchase,
		fmt.Sprintf("%s payment %s", payment.Provider, payment.ProviderTrackID)); err != nil {
		return fmt.Errorf("insert purchase transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment completion: %w", err)
	}

	s.notifier.PaymentCompleted(payment.UserID, payment.CreditsPurchased)
	return nil
}

// Status returns the locally recorded state of an OxaPay payment.
func (s *PaymentService) Status(ctx context.Context, trackID string) (*models.Payment, error) {
	payment, err := s.payments.FindByProviderTrack(ctx, models.ProviderOxaPay, trackID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// List returns recent payments for the admin view.
func (s *PaymentService) List(ctx context.Context, limit int) ([]models.Payment, error) {
	return s.payments.List(ctx, limit)
}

func displayName(user *models.User) string {
	if user.Username != "" {
		return user.Username
	}
	return user.ID
}
