package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/scheduler"
)

type meetingService interface {
	Book(ctx context.Context, params application.BookMeetingParams) (application.BookingResult, error)
	ListMeetings(ctx context.Context, principal application.Principal) ([]application.Meeting, error)
	GetMeeting(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)
	Cancel(ctx context.Context, principal application.Principal, meetingID string) (application.CancelResult, error)
}

// MeetingHandler serves direct meeting operations outside the chat flow.
type MeetingHandler struct {
	service   meetingService
	responder responder
	logger    *slog.Logger
}

func NewMeetingHandler(service meetingService, logger *slog.Logger) *MeetingHandler {
	base := defaultLogger(logger)
	return &MeetingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MeetingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "MeetingHandler", operation, attrs...)
}

type meetingRequest struct {
	Title        string `json:"title"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	Duration     string `json:"duration"`
	Participants int    `json:"participants"`
	Medium       string `json:"medium"`
}

func (r meetingRequest) toInput() application.MeetingInput {
	return application.MeetingInput{
		Title:        r.Title,
		Date:         r.Date,
		StartTime:    r.StartTime,
		Duration:     r.Duration,
		Participants: r.Participants,
		Medium:       r.Medium,
	}
}

type meetingDTO struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Date          string     `json:"date"`
	StartTime     string     `json:"start_time"`
	Duration      string     `json:"duration"`
	Participants  int        `json:"participants"`
	Medium        string     `json:"medium"`
	Room          string     `json:"room"`
	BridgeAccount string     `json:"bridge_account,omitempty"`
	BridgeID      string     `json:"bridge_id,omitempty"`
	BridgeLink    string     `json:"bridge_link,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toMeetingDTO(m application.Meeting) meetingDTO {
	dto := meetingDTO{
		ID:            m.ID,
		Title:         m.Title,
		Date:          m.Date,
		StartTime:     m.StartTime,
		Duration:      m.Duration,
		Participants:  m.Participants,
		Medium:        string(m.Medium),
		Room:          m.Room,
		BridgeAccount: m.BridgeAccount,
		BridgeID:      m.BridgeID,
		BridgeLink:    m.BridgeLink,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
	}
	if m.Cancelled() {
		at := m.CancelledAt
		dto.CancelledAt = &at
	}
	return dto
}

func toMeetingDTOs(meetings []application.Meeting) []meetingDTO {
	out := make([]meetingDTO, len(meetings))
	for i, m := range meetings {
		out[i] = toMeetingDTO(m)
	}
	return out
}

type bookingResponse struct {
	Outcome     string      `json:"outcome"`
	Meeting     *meetingDTO `json:"meeting,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

type cancelResponse struct {
	Meeting     meetingDTO   `json:"meeting"`
	Relocatable []meetingDTO `json:"relocatable"`
}

// Create books a meeting. A full slot answers 409 with suggestions.
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req meetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode meeting request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)
	result, err := h.service.Book(r.Context(), application.BookMeetingParams{Principal: principal, Input: req.toInput()})
	if err != nil {
		logger.ErrorContext(r.Context(), "meeting booking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := bookingResponse{Outcome: result.Outcome.String()}
	switch result.Outcome {
	case scheduler.OutcomeAssigned:
		dto := toMeetingDTO(result.Meeting)
		resp.Meeting = &dto
		logger.With("meeting_id", dto.ID).InfoContext(r.Context(), "meeting booked")
		h.responder.writeJSON(r.Context(), w, http.StatusCreated, resp)
	case scheduler.OutcomeNeedsSlotChoice:
		for _, s := range result.Suggestions {
			resp.Suggestions = append(resp.Suggestions, s.Label())
		}
		h.responder.writeJSON(r.Context(), w, http.StatusConflict, resp)
	default:
		h.responder.writeJSON(r.Context(), w, http.StatusConflict, resp)
	}
}

func (h *MeetingHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	meetings, err := h.service.ListMeetings(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "meeting listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"meetings": toMeetingDTOs(meetings)})
}

func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	meeting, err := h.service.GetMeeting(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"meeting": toMeetingDTO(meeting)})
}

// Delete cancels a meeting and lists meetings that could move into its room.
func (h *MeetingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}

	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "meeting_id", id)
	result, err := h.service.Cancel(r.Context(), principal, id)
	if err != nil {
		logger.ErrorContext(r.Context(), "meeting cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "meeting cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, cancelResponse{
		Meeting:     toMeetingDTO(result.Meeting),
		Relocatable: toMeetingDTOs(result.Relocatable),
	})
}
