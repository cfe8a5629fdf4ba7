package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/intellidesk/internal/persistence"
	"github.com/example/intellidesk/internal/scheduler"
)

// RelocationMaxParticipants is the largest meeting suggested for relocation when
// another meeting is cancelled.
const RelocationMaxParticipants = 4

// errNoCommit aborts a collection mutation without writing.
var errNoCommit = errors.New("application: nothing to commit")

// MeetingService commits room bookings. Resolution and append run under one
// lock and inside one optimistic swap, so two bookings can never both land on
// an overlapping slot of the same room.
type MeetingService struct {
	meetings    Records[persistence.Meeting]
	rooms       *RoomService
	bridge      BridgeProvisioner
	notifier    Notifier
	audit       AuditRecorder
	mu          sync.Mutex
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMeetingService constructs a meeting service with the provided dependencies.
func NewMeetingService(meetings Records[persistence.Meeting], rooms *RoomService, idGenerator func() string, now func() time.Time) *MeetingService {
	return NewMeetingServiceWithLogger(meetings, rooms, idGenerator, now, nil)
}

// NewMeetingServiceWithLogger constructs a meeting service with a specified logger.
func NewMeetingServiceWithLogger(meetings Records[persistence.Meeting], rooms *RoomService, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MeetingService {
	if idGenerator == nil {
		idGenerator = prefixedID("MTG")
	}
	if now == nil {
		now = time.Now
	}
	return &MeetingService{meetings: meetings, rooms: rooms, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

// UseProvisioning sets the post-commit collaborators. Either may be nil.
func (s *MeetingService) UseProvisioning(bridge BridgeProvisioner, notifier Notifier) {
	s.bridge = bridge
	s.notifier = notifier
}

// UseAudit sets the audit recorder.
func (s *MeetingService) UseAudit(recorder AuditRecorder) {
	s.audit = recorder
}

func (s *MeetingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingService", operation, attrs...)
}

// Book resolves a room for the request and commits the meeting. When the slot is
// full the result carries suggestions instead and nothing is written.
func (s *MeetingService) Book(ctx context.Context, params BookMeetingParams) (result BookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Book",
		"principal_id", params.Principal.UserID,
		"date", params.Input.Date,
		"start_time", params.Input.StartTime,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to book meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking resolved", "outcome", result.Outcome.String(), "meeting_id", result.Meeting.ID, "room", result.Meeting.Room)
	}()

	if strings.TrimSpace(params.Principal.UserID) == "" {
		err = ErrUnauthorized
		return
	}
	input, medium, vErr := validateMeetingInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting store not configured")
		return
	}

	meeting := Meeting{
		ID:           s.idGenerator(),
		Title:        input.Title,
		Date:         input.Date,
		StartTime:    input.StartTime,
		Duration:     input.Duration,
		Participants: input.Participants,
		Medium:       medium,
		CreatedBy:    params.Principal.UserID,
		CreatedAt:    s.now(),
	}
	req := scheduler.Request{
		Date:         input.Date,
		StartTime:    input.StartTime,
		Duration:     input.Duration,
		Participants: input.Participants,
		Medium:       medium,
	}
	rooms := s.rooms.schedulerRooms()

	s.mu.Lock()
	_, err = s.meetings.Mutate(ctx, func(records []persistence.Meeting) ([]persistence.Meeting, error) {
		committed := activeBookings(records)
		outcome, rErr := scheduler.Resolve(req, rooms, committed)
		if rErr != nil {
			return nil, rErr
		}
		result = BookingResult{Outcome: outcome.Kind, Suggestions: outcome.Suggestions}
		if outcome.Kind != scheduler.OutcomeAssigned {
			return nil, errNoCommit
		}

		m := meeting
		m.Room = outcome.Room.Name
		if medium == scheduler.MediumRemote {
			m.BridgeAccount = outcome.Room.BridgeAccount
		}
		conflicts, cErr := scheduler.DetectConflicts(committed, toBooking(m))
		if cErr != nil {
			return nil, cErr
		}
		if len(conflicts) > 0 {
			return nil, fmt.Errorf("%w: %s overlaps %s", ErrConflict, m.Room, conflicts[0].WithBookingID)
		}
		result.Meeting = m
		return append(records, meetingToRecord(m)), nil
	})
	s.mu.Unlock()

	switch {
	case errors.Is(err, errNoCommit):
		err = nil
		return
	case errors.Is(err, scheduler.ErrInvalidSlot):
		vErr := &ValidationError{}
		vErr.add("slot", err.Error())
		err = vErr
		return
	case err != nil:
		err = mapRecordError(err)
		return
	}

	recordAudit(ctx, s.audit, logger, AuditEntry{Actor: params.Principal, Action: "meeting.created", EntityType: "meeting", EntityID: result.Meeting.ID})
	result.Meeting = s.afterCommit(ctx, logger, result.Meeting)
	return
}

// afterCommit provisions the bridge for remote meetings and sends the
// confirmation. Failures are logged; the booking stands.
func (s *MeetingService) afterCommit(ctx context.Context, logger *slog.Logger, m Meeting) Meeting {
	if m.Medium == scheduler.MediumRemote && s.bridge != nil && m.BridgeAccount != "" {
		session, err := s.bridge.Provision(ctx, s.bridgeRequest(m))
		if err != nil {
			logger.WarnContext(ctx, "bridge provisioning failed", "meeting_id", m.ID, "account", m.BridgeAccount, "error", err)
		} else if updated, err := s.AttachBridge(ctx, m.ID, session); err != nil {
			logger.WarnContext(ctx, "failed to attach bridge session", "meeting_id", m.ID, "error", err, "error_kind", ErrorKind(err))
		} else {
			m = updated
		}
	}
	notify(ctx, s.notifier, logger, meetingConfirmation(m))
	return m
}

func (s *MeetingService) bridgeRequest(m Meeting) BridgeRequest {
	slot, _ := scheduler.ParseSlot(m.Date, m.StartTime, m.Duration)
	year := m.CreatedAt.Year()
	start := time.Date(year, slot.Start.Month(), slot.Start.Day(), slot.Start.Hour(), slot.Start.Minute(), 0, 0, time.UTC)
	return BridgeRequest{
		Account:  m.BridgeAccount,
		Title:    m.Title,
		Start:    start,
		Duration: slot.End.Sub(slot.Start),
	}
}

// AttachBridge stores provisioning output on an existing meeting. Bridge fields
// that are already set are kept, so repeated calls never replace a session.
func (s *MeetingService) AttachBridge(ctx context.Context, meetingID string, session BridgeSession) (meeting Meeting, err error) {
	if s == nil || s.meetings == nil {
		err = fmt.Errorf("meeting store not configured")
		return
	}
	_, err = s.meetings.Mutate(ctx, func(records []persistence.Meeting) ([]persistence.Meeting, error) {
		idx := indexMeeting(records, meetingID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		out := append([]persistence.Meeting(nil), records...)
		if out[idx].BridgeID == "" {
			out[idx].BridgeID = session.ID
			out[idx].BridgeLink = session.JoinURL
		}
		meeting = meetingFromRecord(out[idx])
		return out, nil
	})
	err = mapRecordError(err)
	return
}

// ListMeetings returns active meetings. Administrators see every meeting, other
// users only their own.
func (s *MeetingService) ListMeetings(ctx context.Context, principal Principal) (meetings []Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	if s.meetings == nil {
		return nil, nil
	}

	records, err := s.meetings.List(ctx)
	if err != nil {
		err = mapRecordError(err)
		s.loggerWith(ctx, "ListMeetings", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list meetings", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	for _, r := range records {
		if !r.CancelledAt.IsZero() {
			continue
		}
		if !principal.IsAdmin() && r.CreatedBy != principal.UserID {
			continue
		}
		meetings = append(meetings, meetingFromRecord(r))
	}
	return meetings, nil
}

// GetMeeting returns one meeting visible to principal.
func (s *MeetingService) GetMeeting(ctx context.Context, principal Principal, meetingID string) (Meeting, error) {
	if s == nil || s.meetings == nil {
		return Meeting{}, fmt.Errorf("meeting store not configured")
	}
	records, err := s.meetings.List(ctx)
	if err != nil {
		return Meeting{}, mapRecordError(err)
	}
	idx := indexMeeting(records, meetingID)
	if idx < 0 {
		return Meeting{}, ErrNotFound
	}
	m := meetingFromRecord(records[idx])
	if !principal.IsAdmin() && m.CreatedBy != principal.UserID {
		return Meeting{}, ErrNotFound
	}
	return m, nil
}

// Cancel releases a meeting's room. The result lists overlapping meetings with
// at most RelocationMaxParticipants people that could move into it.
func (s *MeetingService) Cancel(ctx context.Context, principal Principal, meetingID string) (result CancelResult, err error) {
	if s == nil || s.meetings == nil {
		err = fmt.Errorf("meeting store not configured")
		return
	}

	logger := s.loggerWith(ctx, "Cancel",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel meeting", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "meeting cancelled", "relocatable", len(result.Relocatable))
	}()

	cancelledAt := s.now()
	s.mu.Lock()
	_, err = s.meetings.Mutate(ctx, func(records []persistence.Meeting) ([]persistence.Meeting, error) {
		idx := indexMeeting(records, meetingID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		target := records[idx]
		if !principal.IsAdmin() && target.CreatedBy != principal.UserID {
			return nil, ErrUnauthorized
		}
		if !target.CancelledAt.IsZero() {
			return nil, fmt.Errorf("%w: meeting already cancelled", ErrConflict)
		}

		out := append([]persistence.Meeting(nil), records...)
		out[idx].CancelledAt = cancelledAt
		result = CancelResult{Meeting: meetingFromRecord(out[idx]), Relocatable: relocatable(out, out[idx])}
		return out, nil
	})
	s.mu.Unlock()
	if err != nil {
		err = mapRecordError(err)
		return
	}

	recordAudit(ctx, s.audit, logger, AuditEntry{Actor: principal, Action: "meeting.cancelled", EntityType: "meeting", EntityID: meetingID})
	notify(ctx, s.notifier, logger, Notification{
		To:      result.Meeting.CreatedBy,
		Subject: "Meeting cancelled: " + result.Meeting.Title,
		Body:    fmt.Sprintf("Your meeting in %s on %s at %s has been cancelled.", result.Meeting.Room, result.Meeting.Date, result.Meeting.StartTime),
	})
	return
}

func relocatable(records []persistence.Meeting, cancelled persistence.Meeting) []Meeting {
	freed, err := scheduler.ParseSlot(cancelled.Date, cancelled.StartTime, cancelled.Duration)
	if err != nil {
		return nil
	}
	var out []Meeting
	for _, r := range records {
		if r.ID == cancelled.ID || !r.CancelledAt.IsZero() || r.Participants > RelocationMaxParticipants {
			continue
		}
		if strings.EqualFold(r.Room, cancelled.Room) {
			continue
		}
		slot, err := scheduler.ParseSlot(r.Date, r.StartTime, r.Duration)
		if err != nil || !slot.Overlaps(freed) {
			continue
		}
		out = append(out, meetingFromRecord(r))
	}
	return out
}

func validateMeetingInput(in MeetingInput) (MeetingInput, scheduler.Medium, *ValidationError) {
	vErr := &ValidationError{}
	in.Title = strings.TrimSpace(in.Title)
	in.Date = strings.TrimSpace(in.Date)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.Duration = strings.TrimSpace(in.Duration)

	if in.Title == "" {
		vErr.add("title", "title is required")
	}
	if in.Participants <= 0 {
		vErr.add("participants", "participants must be positive")
	}
	medium, ok := scheduler.ParseMedium(in.Medium)
	if !ok {
		vErr.add("medium", "medium must be in_person or remote")
	}
	if _, err := scheduler.ParseSlot(in.Date, in.StartTime, in.Duration); err != nil {
		vErr.add("slot", "date must be DD/MM, start_time HH:MM and duration H:MM")
	}
	return in, medium, vErr
}

func meetingConfirmation(m Meeting) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Your meeting %q is booked.\n", m.Title)
	fmt.Fprintf(&b, "Meeting ID: %s\nRoom: %s\nDate: %s\nStart: %s\nDuration: %s\n", m.ID, m.Room, m.Date, m.StartTime, m.Duration)
	if m.BridgeLink != "" {
		fmt.Fprintf(&b, "Join link: %s\n", m.BridgeLink)
	}
	return Notification{To: m.CreatedBy, Subject: "Meeting confirmed: " + m.Title, Body: b.String()}
}

func toBooking(m Meeting) scheduler.Booking {
	return scheduler.Booking{ID: m.ID, Room: m.Room, Date: m.Date, StartTime: m.StartTime, Duration: m.Duration}
}

func indexMeeting(records []persistence.Meeting, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
