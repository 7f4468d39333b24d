package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fansignhq/fansign-backend/internal/models"
	"github.com/fansignhq/fansign-backend/internal/service"
)

// Admin operations are typed: every mutation goes through the same service
// layer as the public API, never through ad hoc SQL.

func (s *Server) handleAdminGenerateKeys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyType string `json:"keyType"`
		Count   int    `json:"count"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !models.ValidKeyType(req.KeyType) {
		badRequest(w, "unknown key type")
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	keys, err := s.keys.Generate(r.Context(), req.KeyType, req.Count)
	if err != nil {
		if errors.Is(err, service.ErrUnknownKeyType) {
			badRequest(w, "unknown key type")
			return
		}
		s.log.Error("key generation failed", "key_type", req.KeyType, "count", req.Count, "err", err)
		internalError(w)
		return
	}

	codes := make([]string, 0, len(keys))
	for _, k := range keys {
		codes = append(codes, k.KeyValue)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"keyType": req.KeyType,
		"count":   len(codes),
		"keys":    codes,
	})
}

func (s *Server) handleAdminListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.List(r.Context())
	if err != nil {
		s.log.Error("key list failed", "err", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"keys":    keys,
	})
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.log.Error("user list failed", "err", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   users,
	})
}

func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	user, err := s.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			fail(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error("user lookup failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

func (s *Server) handleAdminAdjustCredits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Amount == 0 {
		badRequest(w, "amount must be non-zero")
		return
	}

	balance, err := s.credits.Adjust(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			fail(w, http.StatusNotFound, "user not found")
		case errors.Is(err, service.ErrInsufficientCredits):
			badRequest(w, "adjustment would make the balance negative")
		default:
			s.log.Error("credit adjustment failed", "user_id", userID, "amount", req.Amount, "err", err)
			internalError(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"userId":  userID,
		"balance": balance,
	})
}

func (s *Server) handleAdminListPayments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	payments, err := s.payments.List(r.Context(), limit)
	if err != nil {
		s.log.Error("payment list failed", "err", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"payments": payments,
	})
}

func (s *Server) handleAdminListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		badRequest(w, "userId is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	transactions, err := s.credits.History(r.Context(), userID, limit)
	if err != nil {
		s.log.Error("transaction list failed", "user_id", userID, "err", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": transactions,
	})
}
