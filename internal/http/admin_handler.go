package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/application"
)

type adminService interface {
	Overview(ctx context.Context, principal application.Principal) (application.Overview, error)
	AuditLog(ctx context.Context, principal application.Principal, limit int) ([]application.AuditRecord, error)
}

// AdminHandler serves the administrator overview and the audit log.
type AdminHandler struct {
	service   adminService
	responder responder
	logger    *slog.Logger
}

func NewAdminHandler(service adminService, logger *slog.Logger) *AdminHandler {
	base := defaultLogger(logger)
	return &AdminHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AdminHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AdminHandler", operation, attrs...)
}

type overviewDTO struct {
	Meetings          []meetingDTO   `json:"meetings"`
	Tickets           []ticketDTO    `json:"tickets"`
	Equipment         []equipmentDTO `json:"equipment"`
	TicketsByStatus   map[string]int `json:"tickets_by_status"`
	EquipmentByStatus map[string]int `json:"equipment_by_status"`
}

type auditRecordDTO struct {
	ID         string    `json:"id"`
	At         time.Time `json:"ts"`
	RequestID  string    `json:"request_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
}

func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	overview, err := h.service.Overview(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := overviewDTO{
		Meetings:          toMeetingDTOs(overview.Meetings),
		Tickets:           make([]ticketDTO, len(overview.Tickets)),
		Equipment:         make([]equipmentDTO, len(overview.Equipment)),
		TicketsByStatus:   make(map[string]int, len(overview.TicketsByStatus)),
		EquipmentByStatus: make(map[string]int, len(overview.EquipmentByStatus)),
	}
	for i, t := range overview.Tickets {
		out.Tickets[i] = toTicketDTO(t)
	}
	for i, item := range overview.Equipment {
		out.Equipment[i] = toEquipmentDTO(item)
	}
	for status, n := range overview.TicketsByStatus {
		out.TicketsByStatus[string(status)] = n
	}
	for status, n := range overview.EquipmentByStatus {
		out.EquipmentByStatus[string(status)] = n
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

// AuditLog returns the newest audit records; ?limit= caps how many.
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.log(r.Context(), "AuditLog", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "invalid audit limit", "limit", raw)
			h.responder.writeCoded(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.service.AuditLog(r.Context(), principal, limit)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]auditRecordDTO, len(records))
	for i, rec := range records {
		out[i] = auditRecordDTO{
			ID:         rec.ID,
			At:         rec.At,
			RequestID:  rec.RequestID,
			ActorID:    rec.Actor.UserID,
			ActorRole:  string(rec.Actor.Role),
			Action:     rec.Action,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"events": out})
}
