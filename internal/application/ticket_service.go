package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/persistence"
)

// FallbackSteps are offered when automated troubleshooting is unavailable.
var FallbackSteps = []string{
	"Please restart your system.",
	"If the issue persists, contact IT support.",
}

// TicketService opens, troubleshoots and routes IT tickets.
type TicketService struct {
	tickets        Records[persistence.Ticket]
	troubleshooter Troubleshooter
	admins         []string
	audit          AuditRecorder
	timeout        time.Duration
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewTicketService constructs a ticket service. admins lists the user ids that
// escalated tickets can be assigned to.
func NewTicketService(tickets Records[persistence.Ticket], troubleshooter Troubleshooter, admins []string, idGenerator func() string, now func() time.Time) *TicketService {
	return NewTicketServiceWithLogger(tickets, troubleshooter, admins, idGenerator, now, nil)
}

// NewTicketServiceWithLogger constructs a ticket service with a specified logger.
func NewTicketServiceWithLogger(tickets Records[persistence.Ticket], troubleshooter Troubleshooter, admins []string, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TicketService {
	if idGenerator == nil {
		idGenerator = prefixedID("TCK")
	}
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:        tickets,
		troubleshooter: troubleshooter,
		admins:         append([]string(nil), admins...),
		idGenerator:    idGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

// UseAudit sets the audit recorder.
func (s *TicketService) UseAudit(recorder AuditRecorder) { s.audit = recorder }

// UseTroubleshootTimeout bounds each troubleshooter call. A lapsed call yields
// FallbackSteps.
func (s *TicketService) UseTroubleshootTimeout(d time.Duration) { s.timeout = d }

func (s *TicketService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TicketService", operation, attrs...)
}

func (s *TicketService) ready() error {
	if s == nil || s.tickets == nil {
		return fmt.Errorf("ticket store not configured")
	}
	return nil
}

// Create opens a ticket for the principal.
func (s *TicketService) Create(ctx context.Context, params CreateTicketParams) (ticket Ticket, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Create", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create ticket", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "ticket created", "ticket_id", ticket.ID)
	}()

	if strings.TrimSpace(params.Principal.UserID) == "" {
		err = ErrUnauthorized
		return
	}
	issue := strings.TrimSpace(params.Issue)
	if issue == "" {
		vErr := &ValidationError{}
		vErr.add("issue", "issue is required")
		err = vErr
		return
	}

	now := s.now()
	ticket = Ticket{
		ID:        s.idGenerator(),
		Issue:     issue,
		Status:    TicketOpen,
		CreatedBy: params.Principal.UserID,
		History:   []TicketEvent{{At: now, Actor: params.Principal.UserID, Action: "created"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.tickets.Mutate(ctx, func(records []persistence.Ticket) ([]persistence.Ticket, error) {
		if indexTicket(records, ticket.ID) >= 0 {
			return nil, ErrAlreadyExists
		}
		return append(records, ticketToRecord(ticket)), nil
	})
	if err != nil {
		err = mapRecordError(err)
		return
	}
	recordAudit(ctx, s.audit, logger, AuditEntry{Actor: params.Principal, Action: "ticket.created", EntityType: "ticket", EntityID: ticket.ID})
	return
}

// Troubleshoot runs one automated troubleshooting round. At most
// MaxTroubleshootAttempts rounds run per ticket; a failing troubleshooter
// yields FallbackSteps and still counts as a round.
func (s *TicketService) Troubleshoot(ctx context.Context, principal Principal, ticketID string) (ticket Ticket, result TroubleshootResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Troubleshoot", "principal_id", principal.UserID, "ticket_id", ticketID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to troubleshoot ticket", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "troubleshooting round completed", "attempts", ticket.Attempts, "resolved", result.Resolved)
	}()

	current, err := s.visible(ctx, principal, ticketID)
	if err != nil {
		return
	}
	if current.Status != TicketOpen {
		err = fmt.Errorf("%w: ticket is %s", ErrConflict, current.Status)
		return
	}
	if current.Attempts >= MaxTroubleshootAttempts {
		err = ErrAttemptsExhausted
		return
	}

	result = s.runTroubleshooter(ctx, logger, current)

	now := s.now()
	ticket, err = s.update(ctx, ticketID, func(t *Ticket) error {
		if t.Attempts >= MaxTroubleshootAttempts {
			return ErrAttemptsExhausted
		}
		t.Attempts++
		t.Steps = append(t.Steps, result.Steps...)
		t.History = append(t.History, TicketEvent{At: now, Actor: "assistant", Action: "troubleshoot", Detail: strings.Join(result.Steps, " | ")})
		if result.Resolved {
			t.Status = TicketResolved
			t.History = append(t.History, TicketEvent{At: now, Actor: "assistant", Action: "resolved"})
		}
		t.UpdatedAt = now
		return nil
	})
	return
}

func (s *TicketService) runTroubleshooter(ctx context.Context, logger *slog.Logger, t Ticket) TroubleshootResult {
	if s.troubleshooter == nil {
		return TroubleshootResult{Steps: append([]string(nil), FallbackSteps...)}
	}
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	result, err := s.troubleshooter.Troubleshoot(callCtx, t.Issue, t.Steps)
	if err != nil || len(result.Steps) == 0 {
		logger.WarnContext(ctx, "troubleshooter unavailable, using fallback steps", "error", err)
		return TroubleshootResult{Steps: append([]string(nil), FallbackSteps...)}
	}
	return result
}

// Resolve marks an open ticket as fixed by its creator.
func (s *TicketService) Resolve(ctx context.Context, principal Principal, ticketID string) (Ticket, error) {
	return s.transition(ctx, principal, ticketID, "Resolve", "ticket.resolved", func(t *Ticket) error {
		if t.CreatedBy != principal.UserID && !principal.IsAdmin() {
			return ErrUnauthorized
		}
		if t.Status != TicketOpen && t.Status != TicketEscalated {
			return fmt.Errorf("%w: ticket is %s", ErrConflict, t.Status)
		}
		t.Status = TicketResolved
		return nil
	})
}

// Escalate assigns the ticket to the administrator with the fewest escalated
// tickets. Ties go to the lowest admin id.
func (s *TicketService) Escalate(ctx context.Context, principal Principal, ticketID string) (Ticket, error) {
	var assigned string
	t, err := s.transitionAll(ctx, principal, ticketID, "Escalate", "ticket.escalated", func(records []persistence.Ticket, t *Ticket) error {
		if t.CreatedBy != principal.UserID && !principal.IsAdmin() {
			return ErrUnauthorized
		}
		if t.Status != TicketOpen {
			return fmt.Errorf("%w: ticket is %s", ErrConflict, t.Status)
		}
		admin, ok := leastLoadedAdmin(s.admins, records)
		if !ok {
			return ErrNoAdminAvailable
		}
		t.Status = TicketEscalated
		t.AssignedAdmin = admin
		assigned = admin
		return nil
	})
	if err == nil {
		s.loggerWith(ctx, "Escalate", "ticket_id", ticketID).InfoContext(ctx, "ticket assigned", "admin", assigned)
	}
	return t, err
}

// Close finishes a ticket. Administrators only.
func (s *TicketService) Close(ctx context.Context, principal Principal, ticketID string) (Ticket, error) {
	if !principal.IsAdmin() {
		return Ticket{}, ErrUnauthorized
	}
	return s.transition(ctx, principal, ticketID, "Close", "ticket.closed", func(t *Ticket) error {
		if t.Status == TicketClosed {
			return fmt.Errorf("%w: ticket already closed", ErrConflict)
		}
		t.Status = TicketClosed
		return nil
	})
}

// List returns tickets by role: users see their own, admins the ones assigned
// to them and superusers every ticket.
func (s *TicketService) List(ctx context.Context, principal Principal) ([]Ticket, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	records, err := s.tickets.List(ctx)
	if err != nil {
		return nil, mapRecordError(err)
	}
	out := make([]Ticket, 0, len(records))
	for _, r := range records {
		if canSeeTicket(principal, r, true) {
			out = append(out, ticketFromRecord(r))
		}
	}
	return out, nil
}

// Get returns one ticket visible to the principal.
func (s *TicketService) Get(ctx context.Context, principal Principal, ticketID string) (Ticket, error) {
	if err := s.ready(); err != nil {
		return Ticket{}, err
	}
	return s.visible(ctx, principal, ticketID)
}

func (s *TicketService) visible(ctx context.Context, principal Principal, ticketID string) (Ticket, error) {
	records, err := s.tickets.List(ctx)
	if err != nil {
		return Ticket{}, mapRecordError(err)
	}
	idx := indexTicket(records, ticketID)
	if idx < 0 || !canSeeTicket(principal, records[idx], false) {
		return Ticket{}, ErrNotFound
	}
	return ticketFromRecord(records[idx]), nil
}

// canSeeTicket applies the listing rule. Direct lookups additionally let any
// admin open any ticket.
func canSeeTicket(p Principal, r persistence.Ticket, listing bool) bool {
	switch p.Role {
	case RoleSuperuser:
		return true
	case RoleAdmin:
		return !listing || r.AssignedAdmin == p.UserID
	}
	return r.CreatedBy == p.UserID
}

func (s *TicketService) transition(ctx context.Context, principal Principal, ticketID, operation, action string, fn func(t *Ticket) error) (Ticket, error) {
	return s.transitionAll(ctx, principal, ticketID, operation, action, func(_ []persistence.Ticket, t *Ticket) error { return fn(t) })
}

func (s *TicketService) transitionAll(ctx context.Context, principal Principal, ticketID, operation, action string, fn func(records []persistence.Ticket, t *Ticket) error) (ticket Ticket, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, operation, "principal_id", principal.UserID, "ticket_id", ticketID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "ticket transition failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "ticket transitioned", "status", ticket.Status)
	}()

	now := s.now()
	_, err = s.tickets.Mutate(ctx, func(records []persistence.Ticket) ([]persistence.Ticket, error) {
		idx := indexTicket(records, ticketID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		t := ticketFromRecord(records[idx])
		if err := fn(records, &t); err != nil {
			return nil, err
		}
		t.UpdatedAt = now
		t.History = append(t.History, TicketEvent{At: now, Actor: principal.UserID, Action: strings.TrimPrefix(action, "ticket."), Detail: t.AssignedAdmin})
		out := append([]persistence.Ticket(nil), records...)
		out[idx] = ticketToRecord(t)
		ticket = t
		return out, nil
	})
	if err != nil {
		err = mapRecordError(err)
		return
	}
	recordAudit(ctx, s.audit, logger, AuditEntry{Actor: principal, Action: action, EntityType: "ticket", EntityID: ticketID})
	return
}

func (s *TicketService) update(ctx context.Context, ticketID string, fn func(t *Ticket) error) (ticket Ticket, err error) {
	_, err = s.tickets.Mutate(ctx, func(records []persistence.Ticket) ([]persistence.Ticket, error) {
		idx := indexTicket(records, ticketID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		t := ticketFromRecord(records[idx])
		if err := fn(&t); err != nil {
			return nil, err
		}
		out := append([]persistence.Ticket(nil), records...)
		out[idx] = ticketToRecord(t)
		ticket = t
		return out, nil
	})
	if err != nil && !errors.Is(err, ErrAttemptsExhausted) {
		err = mapRecordError(err)
	}
	return
}

// leastLoadedAdmin counts escalated tickets per admin.
func leastLoadedAdmin(admins []string, records []persistence.Ticket) (string, bool) {
	if len(admins) == 0 {
		return "", false
	}
	load := make(map[string]int, len(admins))
	for _, a := range admins {
		load[a] = 0
	}
	for _, r := range records {
		if r.Status != string(TicketEscalated) {
			continue
		}
		if _, ok := load[r.AssignedAdmin]; ok {
			load[r.AssignedAdmin]++
		}
	}
	candidates := append([]string(nil), admins...)
	sort.Slice(candidates, func(i, j int) bool {
		if load[candidates[i]] != load[candidates[j]] {
			return load[candidates[i]] < load[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true
}

func indexTicket(records []persistence.Ticket, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
