package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fansignhq/fansign-backend/internal/auth"
	"github.com/fansignhq/fansign-backend/internal/cache"
	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			status = "degraded"
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}
	}
	if s.cache != nil {
		if err := s.cache.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListPackages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"packages": models.CreditPackages,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"userId"`
		Style       string `json:"style"`
		TextContent string `json:"textContent"`
		Text        string `json:"text"`
		ImageURL    string `json:"imageUrl"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.Style == "" {
		badRequest(w, "userId and style are required")
		return
	}
	// Older clients send "text", newer ones "textContent".
	text := req.TextContent
	if text == "" {
		text = req.Text
	}

	result, err := s.generations.Generate(r.Context(), service.GenerateRequest{
		UserID:      req.UserID,
		Style:       req.Style,
		TextContent: text,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientCredits):
			available, balErr := s.credits.Balance(r.Context(), req.UserID)
			if balErr != nil {
				available = 0
			}
			writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"success":   false,
				"error":     "Insufficient credits",
				"required":  models.GenerationCost(req.Style),
				"available": available,
			})
		case errors.Is(err, service.ErrUserNotFound):
			fail(w, http.StatusNotFound, "user not found")
		default:
			s.log.Error("generation failed", "user_id", req.UserID, "style", req.Style, "err", err)
			internalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"creditsUsed":      result.CreditsUsed,
		"remainingCredits": result.RemainingCredits,
	})
}

func (s *Server) handleRedeemKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Key    string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.Key == "" {
		badRequest(w, "userId and key are required")
		return
	}

	result, err := s.keys.Redeem(r.Context(), req.UserID, req.Key)
	if err != nil {
		if errors.Is(err, service.ErrKeyInvalidOrUsed) {
			// Domain failure, not a transport failure: 200 with the error in
			// the body so the web app can show it inline.
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"error":   "Invalid or already used key",
			})
			return
		}
		s.log.Error("key redemption failed", "user_id", req.UserID, "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Key redeemed successfully",
		"credits_added": result.CreditsAdded,
		"key_type":      result.KeyType,
		"balance":       result.NewBalance,
	})
}

func (s *Server) handleUserCredits(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		badRequest(w, "userId is required")
		return
	}

	credits, _, err := s.credits.GetOrCreateBalance(r.Context(), userID)
	if err != nil {
		s.log.Error("balance lookup failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"credits": credits,
	})
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		PackageID string `json:"packageId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.PackageID == "" {
		badRequest(w, "userId and packageId are required")
		return
	}

	result, err := s.payments.CreateCryptoPayment(r.Context(), req.UserID, req.PackageID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPackage):
			badRequest(w, "invalid package id")
		case errors.Is(err, service.ErrUserNotFound):
			fail(w, http.StatusNotFound, "user not found")
		default:
			s.log.Error("crypto payment creation failed", "user_id", req.UserID, "package", req.PackageID, "err", err)
			internalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"payLink": result.PayLink,
		"trackId": result.TrackID,
		"orderId": result.OrderID,
		"amount":  result.Amount,
		"credits": result.Credits,
	})
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		PackageID string `json:"packageId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.PackageID == "" {
		badRequest(w, "userId and packageId are required")
		return
	}

	result, err := s.payments.CreateCardIntent(r.Context(), req.UserID, req.PackageID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPackage):
			badRequest(w, "invalid package id")
		case errors.Is(err, service.ErrCardPaymentsDisabled):
			fail(w, http.StatusServiceUnavailable, "card payments are not available")
		case errors.Is(err, service.ErrUserNotFound):
			fail(w, http.StatusNotFound, "user not found")
		default:
			s.log.Error("card intent creation failed", "user_id", req.UserID, "package", req.PackageID, "err", err)
			internalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"clientSecret": result.ClientSecret,
		"amount":       result.Amount,
		"credits":      result.Credits,
	})
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	trackID := r.URL.Query().Get("trackId")
	if trackID == "" {
		badRequest(w, "trackId is required")
		return
	}

	payment, err := s.payments.Status(r.Context(), trackID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			fail(w, http.StatusNotFound, "payment not found")
			return
		}
		s.log.Error("payment status lookup failed", "track_id", trackID, "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  payment.Status,
		"credits": payment.CreditsPurchased,
		"orderId": payment.OrderID,
	})
}

func (s *Server) handleOxaPayCallback(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<20)
	if err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := s.payments.HandleOxaPayCallback(r.Context(), body); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			fail(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, service.ErrPaymentNotFound):
			fail(w, http.StatusNotFound, "payment not found")
		default:
			s.log.Error("oxapay callback failed", "err", err)
			internalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<20)
	if err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := s.payments.HandleStripeWebhook(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			fail(w, http.StatusBadRequest, "invalid signature")
			return
		case errors.Is(err, service.ErrPaymentNotFound):
			// A verified event for an intent we never recorded. Acknowledge
			// it; a non-2xx would only make Stripe redeliver forever.
			s.log.Warn("stripe webhook for unknown intent ignored")
		default:
			s.log.Error("stripe webhook failed", "err", err)
			internalError(w)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || len(req.Password) < 8 {
		badRequest(w, "username and a password of at least 8 characters are required")
		return
	}

	user, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			fail(w, http.StatusConflict, "username already exists")
			return
		}
		s.log.Error("registration failed", "username", req.Username, "err", err)
		internalError(w)
		return
	}

	s.writeSession(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		badRequest(w, "username and password are required")
		return
	}

	user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			fail(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		s.log.Error("login failed", "username", req.Username, "err", err)
		internalError(w)
		return
	}

	s.writeSession(w, http.StatusOK, user)
}

func (s *Server) writeSession(w http.ResponseWriter, status int, user *models.User) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.log.Error("token issue failed", "user_id", user.ID, "err", err)
		internalError(w)
		return
	}

	s.setSessionCookie(w, token)
	writeJSON(w, status, map[string]any{
		"success": true,
		"token":   token,
		"user": map[string]any{
			"id":       user.ID,
			"username": user.Username,
			"credits":  user.Credits,
		},
	})
}

func (s *Server) handleTelegramSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitData string `json:"initData"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.InitData == "" {
		badRequest(w, "initData is required")
		return
	}

	// Without a bot token there is no secret to validate against; an empty
	// key would let anyone forge init data.
	if s.cfg.TelegramBotToken == "" {
		fail(w, http.StatusServiceUnavailable, "telegram login is not configured")
		return
	}

	if !auth.ValidateTelegramInitData(req.InitData, s.cfg.TelegramBotToken) {
		fail(w, http.StatusForbidden, "invalid telegram init data")
		return
	}

	userID, err := telegramUserID(req.InitData)
	if err != nil {
		badRequest(w, "initData is missing user information")
		return
	}

	credits, created, err := s.credits.GetOrCreateBalance(r.Context(), userID)
	if err != nil {
		s.log.Error("telegram session user setup failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}
	if created {
		s.log.Info("telegram user registered", "user_id", userID)
	}

	token, err := s.tokens.Issue(userID)
	if err != nil {
		s.log.Error("token issue failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}

	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"userId":  userID,
		"credits": credits,
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "telegram_auth_token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// telegramUserID pulls the numeric user id out of validated init data.
func telegramUserID(initData string) (string, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return "", err
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return "", err
	}
	if user.ID == 0 {
		return "", errors.New("missing user id")
	}
	return strconv.FormatInt(user.ID, 10), nil
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	credits, err := s.credits.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			fail(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error("auth check failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"userId":  userID,
		"credits": credits,
	})
}

func (s *Server) handleUseCredit(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	remaining, err := s.credits.Deduct(r.Context(), userID, 1, models.TransactionGeneration, "manual credit use")
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientCredits):
			available, balErr := s.credits.Balance(r.Context(), userID)
			if balErr != nil {
				available = 0
			}
			writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"success":   false,
				"error":     "Insufficient credits",
				"required":  1,
				"available": available,
			})
		case errors.Is(err, service.ErrUserNotFound):
			fail(w, http.StatusNotFound, "user not found")
		default:
			s.log.Error("credit use failed", "user_id", userID, "err", err)
			internalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"remaining_credits": remaining,
	})
}

func (s *Server) handleGenerationHistory(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.generations.History(r.Context(), userID, limit)
	if err != nil {
		s.log.Error("generation history failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"generations": history,
	})
}

func (s *Server) handleStoreImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image       string `json:"image"`
		ContentType string `json:"contentType"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Image == "" {
		badRequest(w, "image is required")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		badRequest(w, "image must be base64 encoded")
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	if s.cache == nil {
		fail(w, http.StatusServiceUnavailable, "image store is not available")
		return
	}

	id := uuid.NewString()
	img := &cache.StoredImage{Data: data, ContentType: contentType}
	if err := s.cache.SetImage(r.Context(), id, img, s.cfg.TempImageTTL); err != nil {
		s.log.Error("image store failed", "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"id":        id,
		"url":       "/api/image-store/" + id,
		"expiresIn": int(s.cfg.TempImageTTL.Seconds()),
	})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.cache == nil {
		fail(w, http.StatusServiceUnavailable, "image store is not available")
		return
	}

	img, err := s.cache.GetImage(r.Context(), id)
	if err != nil {
		s.log.Error("image fetch failed", "id", id, "err", err)
		internalError(w)
		return
	}
	if img == nil {
		fail(w, http.StatusNotFound, "image not found or expired")
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

const maxUploadBytes = 10 << 20

func (s *Server) handleTempImage(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		fail(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "expected a multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		badRequest(w, "could not read uploaded file")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	userID := userIDFromContext(r.Context())
	publicURL, err := s.uploader.Upload(r.Context(), userID, data, contentType)
	if err != nil {
		s.log.Error("upload failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     publicURL,
	})
}
