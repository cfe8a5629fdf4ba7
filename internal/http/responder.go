package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/conversation"
	"github.com/example/intellidesk/internal/flow"
	"github.com/example/intellidesk/internal/logging"
)

var (
	errBadRequestBody = errors.New("invalid request body")
	errMissingID      = errors.New("a resource id is required in the path")
	errMissingUser    = errors.New("the X-User-ID header is required")
	errInvalidRole    = errors.New("the X-User-Role header must be user, admin or superuser")
	errRateLimited    = errors.New("too many messages, please slow down")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps service sentinels to statuses with stable error codes.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    vErr.FieldErrors,
		})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeCoded(ctx, w, http.StatusForbidden, "FORBIDDEN", statusMessage(http.StatusForbidden))
	case errors.Is(err, application.ErrNotFound), errors.Is(err, flow.ErrNotFound):
		r.writeCoded(ctx, w, http.StatusNotFound, "NOT_FOUND", statusMessage(http.StatusNotFound))
	case errors.Is(err, application.ErrAlreadyExists), errors.Is(err, application.ErrConflict):
		r.writeCoded(ctx, w, http.StatusConflict, "CONFLICT", statusMessage(http.StatusConflict))
	case errors.Is(err, application.ErrUnavailable):
		r.writeCoded(ctx, w, http.StatusConflict, "UNAVAILABLE", "the requested item is not available")
	case errors.Is(err, application.ErrInvalidCode):
		r.writeCoded(ctx, w, http.StatusForbidden, "INVALID_CODE", "the access code does not match any pending request")
	case errors.Is(err, application.ErrCodeExpired):
		r.writeCoded(ctx, w, http.StatusGone, "CODE_EXPIRED", "the access code has expired")
	case errors.Is(err, application.ErrRequestExpired):
		r.writeCoded(ctx, w, http.StatusGone, "REQUEST_EXPIRED", "the request has expired")
	case errors.Is(err, application.ErrAttemptsExhausted):
		r.writeCoded(ctx, w, http.StatusConflict, "ATTEMPTS_EXHAUSTED", "automated troubleshooting is exhausted")
	case errors.Is(err, application.ErrNoAdminAvailable):
		r.writeCoded(ctx, w, http.StatusServiceUnavailable, "NO_ADMIN", "no administrator is available")
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrNoUser):
		r.writeCoded(ctx, w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.writeCoded(ctx, w, http.StatusServiceUnavailable, "CANCELED", "the request was cancelled")
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) writeCoded(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is malformed"
	case http.StatusUnauthorized:
		return "caller identity is required"
	case http.StatusForbidden:
		return "you are not allowed to perform this operation"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusConflict:
		return "the request conflicts with the current state of the resource"
	case http.StatusUnprocessableEntity:
		return "the request contains invalid fields"
	case http.StatusTooManyRequests:
		return "too many requests"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
