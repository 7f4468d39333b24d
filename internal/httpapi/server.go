package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fansignhq/fansign-backend/internal/auth"
	"github.com/fansignhq/fansign-backend/internal/cache"
	"github.com/fansignhq/fansign-backend/internal/config"
	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/service"
)

// Service interfaces consumed by the handlers. The concrete implementations
// live in internal/service; tests substitute fakes.

type CreditService interface {
	GetOrCreateBalance(ctx context.Context, userID string) (int, bool, error)
	Balance(ctx context.Context, userID string) (int, error)
	Deduct(ctx context.Context, userID string, amount int, txType models.TransactionType, details string) (int, error)
	Adjust(ctx context.Context, userID string, amount int, reason string) (int, error)
	History(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error)
}

type KeyService interface {
	Redeem(ctx context.Context, userID, keyCode string) (*service.RedeemResult, error)
	Generate(ctx context.Context, keyType string, count int) ([]models.APIKey, error)
	List(ctx context.Context) ([]models.APIKey, error)
}

type GenerationService interface {
	Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	History(ctx context.Context, userID string, limit int) ([]models.Generation, error)
}

type PaymentService interface {
	CreateCryptoPayment(ctx context.Context, userID, packageID string) (*service.CryptoPaymentResult, error)
	CreateCardIntent(ctx context.Context, userID, packageID string) (*service.CardIntentResult, error)
	HandleOxaPayCallback(ctx context.Context, body []byte) error
	HandleStripeWebhook(ctx context.Context, body []byte, sigHeader string) error
	Status(ctx context.Context, trackID string) (*models.Payment, error)
	List(ctx context.Context, limit int) ([]models.Payment, error)
}

type AuthService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
}

type UserService interface {
	Get(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type Uploader interface {
	Upload(ctx context.Context, userID string, data []byte, contentType string) (string, error)
}

type Server struct {
	cfg         config.Config
	log         *slog.Logger
	credits     CreditService
	keys        KeyService
	generations GenerationService
	payments    PaymentService
	auth        AuthService
	users       UserService
	tokens      *auth.TokenManager
	cache       *cache.Cache
	uploader    Uploader
	db          *sql.DB
	router      *chi.Mux
}

// Deps bundles everything the server needs. Uploader may be nil when object
// storage is not configured; Cache and DB may be nil in tests.
type Deps struct {
	Credits     CreditService
	Keys        KeyService
	Generations GenerationService
	Payments    PaymentService
	Auth        AuthService
	Users       UserService
	Tokens      *auth.TokenManager
	Cache       *cache.Cache
	Uploader    Uploader
	DB          *sql.DB
}

func NewServer(cfg config.Config, log *slog.Logger, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:         cfg,
		log:         log,
		credits:     deps.Credits,
		keys:        deps.Keys,
		generations: deps.Generations,
		payments:    deps.Payments,
		auth:        deps.Auth,
		users:       deps.Users,
		tokens:      deps.Tokens,
		cache:       deps.Cache,
		uploader:    deps.Uploader,
		db:          deps.DB,
		router:      r,
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/packages", s.handleListPackages)

	// Provider callbacks authenticate by signature, not by rate or session.
	r.Post("/api/payments/callback", s.handleOxaPayCallback)
	r.Post("/api/payments/webhook", s.handleStripeWebhook)

	r.Group(func(public chi.Router) {
		public.Use(s.rateLimitMiddleware)
		public.Post("/api/generate", s.handleGenerate)
		public.Post("/api/redeem-key", s.handleRedeemKey)
		public.Get("/api/user-credits", s.handleUserCredits)
		public.Post("/api/payments/create-payment", s.handleCreatePayment)
		public.Post("/api/payments/create-intent", s.handleCreateIntent)
		public.Get("/api/payments/status", s.handlePaymentStatus)
		public.Post("/api/auth/register", s.handleRegister)
		public.Post("/api/auth/login", s.handleLogin)
		public.Post("/api/auth/telegram-session", s.handleTelegramSession)
		public.Post("/api/image-store", s.handleStoreImage)
		public.Get("/api/image-store/{id}", s.handleGetImage)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(s.sessionAuthMiddleware)
		protected.Get("/api/auth/check", s.handleAuthCheck)
		protected.Post("/api/use-credit", s.handleUseCredit)
		protected.Post("/api/temp-image", s.handleTempImage)
		protected.Get("/api/generations", s.handleGenerationHistory)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(s.basicAuthMiddleware())
		ar.Post("/keys/generate", s.handleAdminGenerateKeys)
		ar.Get("/keys", s.handleAdminListKeys)
		ar.Get("/users", s.handleAdminListUsers)
		ar.Get("/users/{id}", s.handleAdminGetUser)
		ar.Post("/users/{id}/credits", s.handleAdminAdjustCredits)
		ar.Get("/payments", s.handleAdminListPayments)
		ar.Get("/transactions", s.handleAdminListTransactions)
	})

	return s
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api server listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}
