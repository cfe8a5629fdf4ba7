package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/conversation"
)

type chatEngine interface {
	Handle(ctx context.Context, msg conversation.Message) (conversation.Reply, error)
	Cancel(ctx context.Context, userID, flowID string) error
}

// ChatHandler exposes the conversation engine.
type ChatHandler struct {
	engine    chatEngine
	responder responder
	logger    *slog.Logger
}

func NewChatHandler(engine chatEngine, logger *slog.Logger) *ChatHandler {
	base := defaultLogger(logger)
	return &ChatHandler{engine: engine, responder: newResponder(base), logger: base}
}

func (h *ChatHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ChatHandler", operation, attrs...)
}

type chatRequest struct {
	Message string `json:"message"`
}

// Post handles one utterance. Adapter failures come back as conversational
// replies with status 200; only engine errors map to error statuses.
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Post", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode chat request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Post", "principal_id", principal.UserID)
	reply, err := h.engine.Handle(r.Context(), conversation.Message{
		Principal:      principal,
		Text:           req.Message,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "chat turn failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if reply.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reply)
}

// CancelFlow discards one of the caller's flows.
func (h *ChatHandler) CancelFlow(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	flowID := strings.TrimSpace(r.PathValue("id"))
	if flowID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	logger := h.log(r.Context(), "CancelFlow", "principal_id", principal.UserID, "flow_id", flowID)
	if err := h.engine.Cancel(r.Context(), principal.UserID, flowID); err != nil {
		logger.ErrorContext(r.Context(), "flow cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "flow cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}
