package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/logging"
)

// Header names understood by the middleware.
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// RequirePrincipal trusts the identity headers set by the fronting gateway
// and rejects requests that carry none.
func RequirePrincipal(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingUser)
				return
			}
			role, ok := application.ParseRole(r.Header.Get(HeaderUserRole))
			if !ok {
				responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRole)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), application.Principal{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RequestLogger attaches a request-scoped logger and correlation id to the
// context. An incoming X-Request-ID is reused; otherwise a UUID is issued.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			ctx = logging.ContextWithRequestID(ctx, id)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}

// DefaultLimiterUsers bounds how many per-user limiters RateLimit keeps.
const DefaultLimiterUsers = 4096

// RateLimit allows each principal perMinute requests per minute with a burst
// of the same size. It must run after RequirePrincipal.
func RateLimit(perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters, _ := lru.New[string, *rate.Limiter](DefaultLimiterUsers)
	var mu sync.Mutex
	limiterFor := func(userID string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters.Get(userID); ok {
			return l
		}
		l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		limiters.Add(userID, l)
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := PrincipalFromContext(r.Context())
			if !limiterFor(principal.UserID).Allow() {
				w.Header().Set("Retry-After", "60")
				responder.writeError(r.Context(), w, http.StatusTooManyRequests, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
