package httpapi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const userIDKey contextKey = "userID"

// userIDFromContext returns the session user id set by sessionAuthMiddleware.
func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// sessionAuthMiddleware requires a valid session token, either as a Bearer
// header or as the telegram_auth_token cookie the web app sets.
func (s *Server) sessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie("telegram_auth_token"); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			fail(w, http.StatusUnauthorized, "authentication required")
			return
		}

		userID, err := s.tokens.Verify(token)
		if err != nil {
			fail(w, http.StatusForbidden, "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// rateLimitMiddleware applies a fixed per-minute request cap per client IP.
// The counter lives in Redis so the cap holds across instances. A Redis
// error fails open; throttling is not worth an outage.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cache == nil || s.cfg.RateLimitPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := s.cache.Allow(r.Context(), clientIP(r), s.cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			s.log.Warn("rate limit check failed", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			fail(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// basicAuthMiddleware protects the admin surface with HTTP basic auth.
func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AdminUsername)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.AdminPassword)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
