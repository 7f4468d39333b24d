package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fansignhq/fansign-backend/internal/auth"
	"github.com/fansignhq/fansign-backend/internal/cache"
	"github.com/fansignhq/fansign-backend/internal/config"
	"github.com/fansignhq/fansign-backend/internal/database"
	"github.com/fansignhq/fansign-backend/internal/httpapi"
	"github.com/fansignhq/fansign-backend/internal/notify"
	"github.com/fansignhq/fansign-backend/internal/oxapay"
	"github.com/fansignhq/fansign-backend/internal/repository"
	"github.com/fansignhq/fansign-backend/internal/service"
	"github.com/fansignhq/fansign-backend/internal/storage"
	"github.com/fansignhq/fansign-backend/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}

	redisCache, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	users := repository.NewUserRepository(db)
	transactions := repository.NewTransactionRepository(db)
	keys := repository.NewKeyRepository(db)
	payments := repository.NewPaymentRepository(db)
	generations := repository.NewGenerationRepository(db)

	notifier := notify.New(cfg.TelegramBotToken, log)
	oxaClient := oxapay.NewClient(cfg.OxaPayMerchantKey, cfg.OxaPayBaseURL, cfg.RequestTimeout, log)

	creditService := service.NewCreditService(users, transactions)
	keyService := service.NewKeyService(keys, notifier)
	generationService := service.NewGenerationService(log, creditService, generations)
	paymentService := service.NewPaymentService(cfg, log, payments, users, oxaClient, notifier)
	authService := service.NewAuthService(users, cfg.SignupBonusCredits)
	userService := service.NewUserService(users)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)

	var uploader httpapi.Uploader
	if cfg.UploadsEnabled() {
		up, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Error("failed to configure uploads", "err", err)
			os.Exit(1)
		}
		uploader = up
	} else {
		log.Info("uploads disabled, S3_BUCKET not set")
	}

	server := httpapi.NewServer(cfg, log, httpapi.Deps{
		Credits:     creditService,
		Keys:        keyService,
		Generations: generationService,
		Payments:    paymentService,
		Auth:        authService,
		Users:       userService,
		Tokens:      tokens,
		Cache:       redisCache,
		Uploader:    uploader,
		DB:          db,
	})

	if err := server.Run(ctx); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
