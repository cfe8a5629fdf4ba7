package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/application"
)

type ticketService interface {
	Create(ctx context.Context, params application.CreateTicketParams) (application.Ticket, error)
	List(ctx context.Context, principal application.Principal) ([]application.Ticket, error)
	Get(ctx context.Context, principal application.Principal, ticketID string) (application.Ticket, error)
	Escalate(ctx context.Context, principal application.Principal, ticketID string) (application.Ticket, error)
	Close(ctx context.Context, principal application.Principal, ticketID string) (application.Ticket, error)
}

// TicketHandler serves IT tickets outside the chat flow.
type TicketHandler struct {
	service   ticketService
	responder responder
	logger    *slog.Logger
}

func NewTicketHandler(service ticketService, logger *slog.Logger) *TicketHandler {
	base := defaultLogger(logger)
	return &TicketHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TicketHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "TicketHandler", operation, attrs...)
}

type ticketRequest struct {
	Issue string `json:"issue"`
}

type ticketDTO struct {
	ID            string    `json:"id"`
	Issue         string    `json:"issue"`
	Status        string    `json:"status"`
	CreatedBy     string    `json:"created_by"`
	AssignedAdmin string    `json:"assigned_admin,omitempty"`
	Attempts      int       `json:"attempts"`
	Steps         []string  `json:"steps,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toTicketDTO(t application.Ticket) ticketDTO {
	return ticketDTO{
		ID:            t.ID,
		Issue:         t.Issue,
		Status:        string(t.Status),
		CreatedBy:     t.CreatedBy,
		AssignedAdmin: t.AssignedAdmin,
		Attempts:      t.Attempts,
		Steps:         t.Steps,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode ticket request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	ticket, err := h.service.Create(r.Context(), application.CreateTicketParams{Principal: principal, Issue: req.Issue})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"ticket": toTicketDTO(ticket)})
}

// List returns tickets filtered by the caller's role.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	tickets, err := h.service.List(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]ticketDTO, len(tickets))
	for i, t := range tickets {
		out[i] = toTicketDTO(t)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"tickets": out})
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.service.Get)
}

func (h *TicketHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.service.Escalate)
}

func (h *TicketHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.service.Close)
}

func (h *TicketHandler) apply(w http.ResponseWriter, r *http.Request, op func(context.Context, application.Principal, string) (application.Ticket, error)) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	ticket, err := op(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"ticket": toTicketDTO(ticket)})
}
