package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/equipment"
)

type equipmentService interface {
	ListEquipment(ctx context.Context, principal application.Principal) ([]equipment.Item, error)
	Request(ctx context.Context, params application.RequestEquipmentParams) (application.EquipmentRequestResult, error)
	Approve(ctx context.Context, principal application.Principal, code string) (equipment.Item, error)
	Return(ctx context.Context, principal application.Principal, itemID string) (equipment.Item, error)
	Verify(ctx context.Context, principal application.Principal, itemID string) (equipment.Item, error)
}

// EquipmentHandler serves the equipment custody lifecycle.
type EquipmentHandler struct {
	service   equipmentService
	responder responder
	logger    *slog.Logger
}

func NewEquipmentHandler(service equipmentService, logger *slog.Logger) *EquipmentHandler {
	base := defaultLogger(logger)
	return &EquipmentHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EquipmentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "EquipmentHandler", operation, attrs...)
}

type equipmentRequest struct {
	Item      string `json:"item"`
	MeetingID string `json:"meeting_id"`
	ReturnBy  string `json:"return_by"`
}

type approveRequest struct {
	Code string `json:"code"`
}

type equipmentDTO struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	RequestedBy      string     `json:"requested_by,omitempty"`
	MeetingID        string     `json:"meeting_id,omitempty"`
	AssignedTo       string     `json:"assigned_to,omitempty"`
	CodeExpiresAt    *time.Time `json:"code_expires_at,omitempty"`
	RequestExpiresAt *time.Time `json:"request_expires_at,omitempty"`
	ReturnBy         string     `json:"return_by,omitempty"`
	Late             bool       `json:"late,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toEquipmentDTO(item equipment.Item) equipmentDTO {
	dto := equipmentDTO{
		ID:               item.ID,
		Name:             item.Name,
		Status:           string(item.Status),
		RequestedBy:      item.RequestedBy,
		MeetingID:        item.MeetingID,
		AssignedTo:       item.AssignedTo,
		CodeExpiresAt:    optionalTime(item.CodeExpiresAt),
		RequestExpiresAt: optionalTime(item.RequestExpiresAt),
		Late:             item.Late,
	}
	if !item.ReturnBy.IsZero() {
		dto.ReturnBy = item.ReturnBy.Format("2006-01-02")
	}
	return dto
}

func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	items, err := h.service.ListEquipment(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "equipment listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]equipmentDTO, len(items))
	for i, item := range items {
		out[i] = toEquipmentDTO(item)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"equipment": out})
}

// CreateRequest places an item on hold. The access code goes out by email
// only and is never part of the response.
func (h *EquipmentHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req equipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreateRequest", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode equipment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Request(r.Context(), application.RequestEquipmentParams{
		Principal: principal,
		Item:      req.Item,
		MeetingID: req.MeetingID,
		ReturnBy:  req.ReturnBy,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"item": toEquipmentDTO(result.Item)})
}

func (h *EquipmentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	item, err := h.service.Approve(r.Context(), principal, strings.TrimSpace(req.Code))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"item": toEquipmentDTO(item)})
}

func (h *EquipmentHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Return)
}

func (h *EquipmentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Verify)
}

func (h *EquipmentHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, application.Principal, string) (equipment.Item, error)) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	item, err := apply(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"item": toEquipmentDTO(item)})
}
