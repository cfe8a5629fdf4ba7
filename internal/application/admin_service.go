package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/persistence"
)

// DefaultAuditLimit caps AuditLog when the caller asks for no limit.
const DefaultAuditLimit = 500

// Overview is the administrator's view across every store.
type Overview struct {
	Meetings          []Meeting
	Tickets           []Ticket
	Equipment         []equipment.Item
	TicketsByStatus   map[TicketStatus]int
	EquipmentByStatus map[equipment.Status]int
}

// AdminService serves the cross-cutting administrator reads.
type AdminService struct {
	meetings Records[persistence.Meeting]
	tickets  Records[persistence.Ticket]
	items    Records[persistence.Equipment]
	trail    AuditReader
	logger   *slog.Logger
}

func NewAdminService(meetings Records[persistence.Meeting], tickets Records[persistence.Ticket], items Records[persistence.Equipment], trail AuditReader, logger *slog.Logger) *AdminService {
	return &AdminService{
		meetings: meetings,
		tickets:  tickets,
		items:    items,
		trail:    trail,
		logger:   defaultLogger(logger),
	}
}

func (s *AdminService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AdminService", operation, attrs...)
}

// Overview returns every active meeting, ticket and equipment item with
// per-status counts. Administrators and superusers only.
func (s *AdminService) Overview(ctx context.Context, principal Principal) (overview Overview, err error) {
	logger := s.loggerWith(ctx, "Overview", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to build overview", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if s.meetings == nil || s.tickets == nil || s.items == nil {
		err = fmt.Errorf("AdminService is not configured")
		return
	}

	meetings, err := s.meetings.List(ctx)
	if err != nil {
		err = mapRecordError(err)
		return
	}
	tickets, err := s.tickets.List(ctx)
	if err != nil {
		err = mapRecordError(err)
		return
	}
	items, err := s.items.List(ctx)
	if err != nil {
		err = mapRecordError(err)
		return
	}

	overview.TicketsByStatus = make(map[TicketStatus]int)
	overview.EquipmentByStatus = make(map[equipment.Status]int)
	for _, r := range meetings {
		if r.CancelledAt.IsZero() {
			overview.Meetings = append(overview.Meetings, meetingFromRecord(r))
		}
	}
	for _, r := range tickets {
		t := ticketFromRecord(r)
		overview.Tickets = append(overview.Tickets, t)
		overview.TicketsByStatus[t.Status]++
	}
	for _, r := range items {
		item := itemFromRecord(r)
		item.CodeDigest, item.ExpiredCodeDigest = "", ""
		overview.Equipment = append(overview.Equipment, item)
		overview.EquipmentByStatus[item.Status]++
	}
	sort.SliceStable(overview.Equipment, func(i, j int) bool {
		return overview.Equipment[i].ID < overview.Equipment[j].ID
	})
	return overview, nil
}

// AuditLog returns the newest limit audit records, oldest first. Superusers only.
func (s *AdminService) AuditLog(ctx context.Context, principal Principal, limit int) (records []AuditRecord, err error) {
	logger := s.loggerWith(ctx, "AuditLog", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to read audit log", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if principal.Role != RoleSuperuser {
		err = ErrUnauthorized
		return
	}
	if s.trail == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	records, err = s.trail.Read(ctx, limit)
	return
}
