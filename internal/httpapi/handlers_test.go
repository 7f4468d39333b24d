package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fansignhq/fansign-backend/internal/auth"
	"github.com/fansignhq/fansign-backend/internal/config"
	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/service"
)

type fakeCredits struct {
	getOrCreate func(ctx context.Context, userID string) (int, bool, error)
	balance     func(ctx context.Context, userID string) (int, error)
	deduct      func(ctx context.Context, userID string, amount int, txType models.TransactionType, details string) (int, error)
	adjust      func(ctx context.Context, userID string, amount int, reason string) (int, error)
	history     func(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error)
}

func (f *fakeCredits) GetOrCreateBalance(ctx context.Context, userID string) (int, bool, error) {
	return f.getOrCreate(ctx, userID)
}

func (f *fakeCredits) Balance(ctx context.Context, userID string) (int, error) {
	return f.balance(ctx, userID)
}

func (f *fakeCredits) Deduct(ctx context.Context, userID string, amount int, txType models.TransactionType, details string) (int, error) {
	return f.deduct(ctx, userID, amount, txType, details)
}

func (f *fakeCredits) Adjust(ctx context.Context, userID string, amount int, reason string) (int, error) {
	return f.adjust(ctx, userID, amount, reason)
}

func (f *fakeCredits) History(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	return f.history(ctx, userID, limit)
}

type fakeKeys struct {
	redeem   func(ctx context.Context, userID, keyCode string) (*service.RedeemResult, error)
	generate func(ctx context.Context, keyType string, count int) ([]models.APIKey, error)
	list     func(ctx context.Context) ([]models.APIKey, error)
}

func (f *fakeKeys) Redeem(ctx context.Context, userID, keyCode string) (*service.RedeemResult, error) {
	return f.redeem(ctx, userID, keyCode)
}

func (f *fakeKeys) Generate(ctx context.Context, keyType string, count int) ([]models.APIKey, error) {
	return f.generate(ctx, keyType, count)
}

func (f *fakeKeys) List(ctx context.Context) ([]models.APIKey, error) {
	return f.list(ctx)
}

type fakeGenerations struct {
	generate func(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	history  func(ctx context.Context, userID string, limit int) ([]models.Generation, error)
}

func (f *fakeGenerations) Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error) {
	return f.generate(ctx, req)
}

func (f *fakeGenerations) History(ctx context.Context, userID string, limit int) ([]models.Generation, error) {
	return f.history(ctx, userID, limit)
}

type fakePayments struct {
	crypto   func(ctx context.Context, userID, packageID string) (*service.CryptoPaymentResult, error)
	card     func(ctx context.Context, userID, packageID string) (*service.CardIntentResult, error)
	callback func(ctx context.Context, body []byte) error
	webhook  func(ctx context.Context, body []byte, sigHeader string) error
	status   func(ctx context.Context, trackID string) (*models.Payment, error)
	list     func(ctx context.Context, limit int) ([]models.Payment, error)
}

func (f *fakePayments) CreateCryptoPayment(ctx context.Context, userID, packageID string) (*service.CryptoPaymentResult, error) {
	return f.crypto(ctx, userID, packageID)
}

func (f *fakePayments) CreateCardIntent(ctx context.Context, userID, packageID string) (*service.CardIntentResult, error) {
	return f.card(ctx, userID, packageID)
}

func (f *fakePayments) HandleOxaPayCallback(ctx context.Context, body []byte) error {
	return f.callback(ctx, body)
}

func (f *fakePayments) HandleStripeWebhook(ctx context.Context, body []byte, sigHeader string) error {
	return f.webhook(ctx, body, sigHeader)
}

func (f *fakePayments) Status(ctx context.Context, trackID string) (*models.Payment, error) {
	return f.status(ctx, trackID)
}

func (f *fakePayments) List(ctx context.Context, limit int) ([]models.Payment, error) {
	return f.list(ctx, limit)
}

type fakeAuth struct {
	register func(ctx context.Context, username, password string) (*models.User, error)
	login    func(ctx context.Context, username, password string) (*models.User, error)
}

func (f *fakeAuth) Register(ctx context.Context, username, password string) (*models.User, error) {
	return f.register(ctx, username, password)
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (*models.User, error) {
	return f.login(ctx, username, password)
}

type fakeUsers struct {
	get  func(ctx context.Context, id string) (*models.User, error)
	list func(ctx context.Context) ([]models.User, error)
}

func (f *fakeUsers) Get(ctx context.Context, id string) (*models.User, error) {
	return f.get(ctx, id)
}

func (f *fakeUsers) List(ctx context.Context) ([]models.User, error) {
	return f.list(ctx)
}

type testEnv struct {
	server      *Server
	credits     *fakeCredits
	keys        *fakeKeys
	generations *fakeGenerations
	payments    *fakePayments
	auth        *fakeAuth
	users       *fakeUsers
	tokens      *auth.TokenManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		credits:     &fakeCredits{},
		keys:        &fakeKeys{},
		generations: &fakeGenerations{},
		payments:    &fakePayments{},
		auth:        &fakeAuth{},
		users:       &fakeUsers{},
		tokens:      auth.NewTokenManager("test-secret", time.Hour),
	}

	cfg := config.Config{
		ListenAddr:    ":0",
		AdminUsername: "admin",
		AdminPassword: "hunter2",
		SessionTTL:    time.Hour,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	env.server = NewServer(cfg, log, Deps{
		Credits:     env.credits,
		Keys:        env.keys,
		Generations: env.generations,
		Payments:    env.payments,
		Auth:        env.auth,
		Users:       env.users,
		Tokens:      env.tokens,
	})
	return env
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGenerateSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.generations.generate = func(_ context.Context, req service.GenerateRequest) (*service.GenerateResult, error) {
		assert.Equal(t, "user-1", req.UserID)
		assert.Equal(t, "times-square", req.Style)
		return &service.GenerateResult{CreditsUsed: 2, RemainingCredits: 8}, nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/generate", map[string]any{
		"userId": "user-1",
		"style":  "times-square",
		"text":   "hello",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["creditsUsed"])
	assert.Equal(t, float64(8), body["remainingCredits"])
}

func TestGenerateInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	env.generations.generate = func(context.Context, service.GenerateRequest) (*service.GenerateResult, error) {
		return nil, service.ErrInsufficientCredits
	}
	env.credits.balance = func(context.Context, string) (int, error) {
		return 1, nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/generate", map[string]any{
		"userId": "user-1",
		"style":  "times-square-new",
	})

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Insufficient credits", body["error"])
	assert.Equal(t, float64(3), body["required"])
	assert.Equal(t, float64(1), body["available"])
}

func TestGenerateMissingFields(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/generate", map[string]any{
		"style": "sign",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedeemKeySuccess(t *testing.T) {
	env := newTestEnv(t)
	env.keys.redeem = func(_ context.Context, userID, keyCode string) (*service.RedeemResult, error) {
		assert.Equal(t, "user-1", userID)
		assert.Equal(t, "PRE-AAAAAAAA-BBBBBBBB-CCCCCCCC", keyCode)
		return &service.RedeemResult{CreditsAdded: 50, KeyType: "PREMIUM", NewBalance: 60}, nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/redeem-key", map[string]any{
		"userId": "user-1",
		"key":    "PRE-AAAAAAAA-BBBBBBBB-CCCCCCCC",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(50), body["credits_added"])
	assert.Equal(t, "PREMIUM", body["key_type"])
}

func TestRedeemKeyInvalidIsOKWithError(t *testing.T) {
	env := newTestEnv(t)
	env.keys.redeem = func(context.Context, string, string) (*service.RedeemResult, error) {
		return nil, service.ErrKeyInvalidOrUsed
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/redeem-key", map[string]any{
		"userId": "user-1",
		"key":    "BAS-00000000-00000000-00000000",
	})

	require.Equal(t, http.StatusOK, rec.Code, "domain failures ride a 200")
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid or already used key", body["error"])
}

func TestUserCredits(t *testing.T) {
	env := newTestEnv(t)
	env.credits.getOrCreate = func(_ context.Context, userID string) (int, bool, error) {
		assert.Equal(t, "42", userID)
		return 10, true, nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/user-credits?userId=42", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["credits"])
}

func TestUserCreditsMissingID(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/user-credits", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePaymentUnknownPackage(t *testing.T) {
	env := newTestEnv(t)
	env.payments.crypto = func(context.Context, string, string) (*service.CryptoPaymentResult, error) {
		return nil, service.ErrUnknownPackage
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/create-payment", map[string]any{
		"userId":    "user-1",
		"packageId": "credits_9000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t)
	env.payments.crypto = func(_ context.Context, userID, packageID string) (*service.CryptoPaymentResult, error) {
		assert.Equal(t, "credits_25", packageID)
		return &service.CryptoPaymentResult{
			PayLink: "https://pay.oxapay.com/555",
			TrackID: 555,
			OrderID: "order_abc",
			Amount:  5.99,
			Credits: 25,
		}, nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/create-payment", map[string]any{
		"userId":    "user-1",
		"packageId": "credits_25",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "https://pay.oxapay.com/555", body["payLink"])
	assert.Equal(t, float64(555), body["trackId"])
	assert.Equal(t, float64(25), body["credits"])
}

func TestCreateIntentDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.payments.card = func(context.Context, string, string) (*service.CardIntentResult, error) {
		return nil, service.ErrCardPaymentsDisabled
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/create-intent", map[string]any{
		"userId":    "user-1",
		"packageId": "credits_10",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOxaPayCallbackInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	called := false
	env.payments.callback = func(context.Context, []byte) error {
		called = true
		return service.ErrInvalidSignature
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/callback", map[string]any{
		"trackId": "555",
		"status":  "Paid",
		"hmac":    "deadbeef",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, called)
}

func TestOxaPayCallbackOK(t *testing.T) {
	env := newTestEnv(t)
	var got []byte
	env.payments.callback = func(_ context.Context, body []byte) error {
		got = body
		return nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/callback", map[string]any{
		"trackId": "555",
		"status":  "Paid",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(got), `"trackId"`)
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	env.payments.webhook = func(_ context.Context, _ []byte, sigHeader string) error {
		assert.Equal(t, "t=1,v1=bad", sigHeader)
		return service.ErrInvalidSignature
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/webhook", map[string]any{
		"type": "payment_intent.succeeded",
	}, func(r *http.Request) {
		r.Header.Set("Stripe-Signature", "t=1,v1=bad")
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeWebhookUnknownIntentAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	env.payments.webhook = func(context.Context, []byte, string) error {
		return service.ErrPaymentNotFound
	}

	// A verified event for a foreign intent gets a 200 so Stripe stops
	// redelivering it.
	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/webhook", map[string]any{
		"type": "payment_intent.succeeded",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["received"])
}

func TestStripeWebhookOK(t *testing.T) {
	env := newTestEnv(t)
	env.payments.webhook = func(context.Context, []byte, string) error {
		return nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/payments/webhook", map[string]any{
		"type": "payment_intent.succeeded",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["received"])
}

func TestRegisterConflict(t *testing.T) {
	env := newTestEnv(t)
	env.auth.register = func(context.Context, string, string) (*models.User, error) {
		return nil, service.ErrUsernameTaken
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/register", map[string]any{
		"username": "alice",
		"password": "correcthorse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterShortPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/register", map[string]any{
		"username": "alice",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.auth.login = func(context.Context, string, string) (*models.User, error) {
		return &models.User{ID: "user-1", Credits: 10}, nil
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "correcthorse",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	userID, err := env.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.auth.login = func(context.Context, string, string) (*models.User, error) {
		return nil, service.ErrInvalidCredentials
	}

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func signTestInitData(botToken string, fields map[string]string) string {
	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secretMac.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestTelegramSessionIssuesToken(t *testing.T) {
	const botToken = "123456:TEST-TOKEN"

	env := newTestEnv(t)
	env.server.cfg.TelegramBotToken = botToken
	env.credits.getOrCreate = func(_ context.Context, userID string) (int, bool, error) {
		assert.Equal(t, "42", userID)
		return 10, true, nil
	}

	initData := signTestInitData(botToken, map[string]string{
		"user":      `{"id":42,"first_name":"Test"}`,
		"auth_date": "1700000000",
	})

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/telegram-session", map[string]any{
		"initData": initData,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "42", body["userId"])
	assert.Equal(t, float64(10), body["credits"])

	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	userID, err := env.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", userID)
}

func TestTelegramSessionRejectsBadInitData(t *testing.T) {
	env := newTestEnv(t)
	env.server.cfg.TelegramBotToken = "123456:TEST-TOKEN"

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/telegram-session", map[string]any{
		"initData": "user=%7B%22id%22%3A42%7D&hash=forged",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTelegramSessionRefusedWithoutBotToken(t *testing.T) {
	env := newTestEnv(t)

	// With no bot token there is no secret; validating against an empty key
	// would accept forgeable data.
	initData := signTestInitData("", map[string]string{
		"user":      `{"id":42}`,
		"auth_date": "1700000000",
	})
	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/telegram-session", map[string]any{
		"initData": initData,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthCheckRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/auth/check", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthCheckRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/auth/check", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthCheckWithBearerToken(t *testing.T) {
	env := newTestEnv(t)
	env.credits.balance = func(_ context.Context, userID string) (int, error) {
		assert.Equal(t, "user-1", userID)
		return 7, nil
	}

	token, err := env.tokens.Issue("user-1")
	require.NoError(t, err)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/auth/check", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "user-1", body["userId"])
	assert.Equal(t, float64(7), body["credits"])
}

func TestAuthCheckWithCookie(t *testing.T) {
	env := newTestEnv(t)
	env.credits.balance = func(context.Context, string) (int, error) {
		return 7, nil
	}

	token, err := env.tokens.Issue("user-1")
	require.NoError(t, err)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/auth/check", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "telegram_auth_token", Value: token})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUseCredit(t *testing.T) {
	env := newTestEnv(t)
	env.credits.deduct = func(_ context.Context, userID string, amount int, txType models.TransactionType, _ string) (int, error) {
		assert.Equal(t, "user-1", userID)
		assert.Equal(t, 1, amount)
		assert.Equal(t, models.TransactionGeneration, txType)
		return 4, nil
	}

	token, err := env.tokens.Issue("user-1")
	require.NoError(t, err)

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/use-credit", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(4), body["remaining_credits"])
}

func TestUseCreditInsufficient(t *testing.T) {
	env := newTestEnv(t)
	env.credits.deduct = func(context.Context, string, int, models.TransactionType, string) (int, error) {
		return 0, service.ErrInsufficientCredits
	}
	balanceCalled := false
	env.credits.balance = func(_ context.Context, userID string) (int, error) {
		balanceCalled = true
		assert.Equal(t, "user-1", userID)
		return 0, nil
	}

	token, err := env.tokens.Issue("user-1")
	require.NoError(t, err)

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/use-credit", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["available"])
	assert.True(t, balanceCalled, "the reported balance comes from the ledger, not a constant")
}

type fakeUploader struct {
	upload func(ctx context.Context, userID string, data []byte, contentType string) (string, error)
}

func (f *fakeUploader) Upload(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	return f.upload(ctx, userID, data, contentType)
}

func TestTempImageUpload(t *testing.T) {
	env := newTestEnv(t)
	uploader := &fakeUploader{
		upload: func(_ context.Context, userID string, data []byte, contentType string) (string, error) {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, []byte("fake-image"), data)
			assert.Equal(t, "image/png", contentType)
			return "https://cdn.example.com/uploads/user-1/abc.png", nil
		},
	}
	env.server.uploader = uploader

	token, err := env.tokens.Issue("user-1")
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="photo.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/temp-image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "https://cdn.example.com/uploads/user-1/abc.png", body["url"])
}

func TestTempImageUploadsDisabled(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.tokens.Issue("user-1")
	require.NoError(t, err)

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/temp-image", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGenerationHistory(t *testing.T) {
	env := newTestEnv(t)
	env.generations.history = func(_ context.Context, userID string, _ int) ([]models.Generation, error) {
		assert.Equal(t, "user-1", userID)
		return []models.Generation{{UserID: "user-1", Style: "sign", CreditsUsed: 1}}, nil
	}

	token, err := env.tokens.Issue("user-1")
	require.NoError(t, err)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/generations", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	generations, ok := body["generations"].([]any)
	require.True(t, ok)
	assert.Len(t, generations, 1)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestListPackages(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.server.Router(), http.MethodGet, "/api/packages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	packages, ok := body["packages"].([]any)
	require.True(t, ok)
	assert.Len(t, packages, len(models.CreditPackages))
}
