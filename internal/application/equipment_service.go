package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/persistence"
)

const codeGenerationAttempts = 5

// EquipmentItem is a catalog entry used to seed the equipment collection.
type EquipmentItem struct {
	ID   string
	Name string
}

// EquipmentService drives the custody lifecycle of shared items.
type EquipmentService struct {
	items    Records[persistence.Equipment]
	hasher   *equipment.Hasher
	entropy  io.Reader
	notifier Notifier
	audit    AuditRecorder
	now      func() time.Time
	logger   *slog.Logger
}

// NewEquipmentService constructs an equipment service with the provided dependencies.
func NewEquipmentService(items Records[persistence.Equipment], hasher *equipment.Hasher, now func() time.Time) *EquipmentService {
	return NewEquipmentServiceWithLogger(items, hasher, now, nil)
}

// NewEquipmentServiceWithLogger constructs an equipment service with a specified logger.
func NewEquipmentServiceWithLogger(items Records[persistence.Equipment], hasher *equipment.Hasher, now func() time.Time, logger *slog.Logger) *EquipmentService {
	if now == nil {
		now = time.Now
	}
	return &EquipmentService{items: items, hasher: hasher, now: now, logger: defaultLogger(logger)}
}

// UseNotifier sets the notifier for request emails.
func (s *EquipmentService) UseNotifier(n Notifier) { s.notifier = n }

// UseAudit sets the audit recorder.
func (s *EquipmentService) UseAudit(recorder AuditRecorder) { s.audit = recorder }

// UseEntropy overrides the code randomness source. Tests use it for stable codes.
func (s *EquipmentService) UseEntropy(r io.Reader) { s.entropy = r }

func (s *EquipmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EquipmentService", operation, attrs...)
}

func (s *EquipmentService) ready() error {
	if s == nil || s.items == nil {
		return fmt.Errorf("equipment store not configured")
	}
	return nil
}

// Seed adds catalog items that are not stored yet as available. It returns how
// many were added.
func (s *EquipmentService) Seed(ctx context.Context, catalog []EquipmentItem) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	added := 0
	_, err := s.items.Mutate(ctx, func(records []persistence.Equipment) ([]persistence.Equipment, error) {
		added = 0
		out := append([]persistence.Equipment(nil), records...)
		for _, c := range catalog {
			if c.ID == "" || indexEquipment(out, c.ID) >= 0 {
				continue
			}
			out = append(out, persistence.Equipment{ID: c.ID, Name: c.Name, Status: string(equipment.StatusAvailable)})
			added++
		}
		if added == 0 {
			return nil, errNoCommit
		}
		return out, nil
	})
	if errors.Is(err, errNoCommit) {
		return 0, nil
	}
	if err != nil {
		return 0, mapRecordError(err)
	}
	s.loggerWith(ctx, "Seed").InfoContext(ctx, "equipment catalog seeded", "added", added)
	return added, nil
}

// ListEquipment returns every item. Non-administrators only see the items they
// requested or hold, plus available ones.
func (s *EquipmentService) ListEquipment(ctx context.Context, principal Principal) ([]equipment.Item, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	records, err := s.items.List(ctx)
	if err != nil {
		return nil, mapRecordError(err)
	}
	out := make([]equipment.Item, 0, len(records))
	for _, r := range records {
		item := itemFromRecord(r)
		if !principal.IsAdmin() && item.Status != equipment.StatusAvailable &&
			item.RequestedBy != principal.UserID && item.AssignedTo != principal.UserID {
			continue
		}
		item.CodeDigest, item.ExpiredCodeDigest = "", ""
		out = append(out, item)
	}
	return out, nil
}

// Request places the first available matching item on hold and emails the
// requester a one-time access code for approval.
func (s *EquipmentService) Request(ctx context.Context, params RequestEquipmentParams) (result EquipmentRequestResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Request",
		"principal_id", params.Principal.UserID,
		"item", params.Item,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to request equipment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "equipment requested", "item_id", result.Item.ID, "code_expires_at", result.CodeExpiresAt)
	}()

	if strings.TrimSpace(params.Principal.UserID) == "" {
		err = ErrUnauthorized
		return
	}
	vErr := &ValidationError{}
	wanted := strings.TrimSpace(params.Item)
	if wanted == "" {
		vErr.add("item", "item is required")
	}
	var returnBy time.Time
	if strings.TrimSpace(params.ReturnBy) == "" {
		vErr.add("return_by", "return date is required")
	} else if returnBy, err = equipment.ParseReturnDate(strings.TrimSpace(params.ReturnBy)); err != nil {
		err = nil
		vErr.add("return_by", "return date must be YYYY-MM-DD or DD/MM/YYYY")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.hasher == nil {
		err = fmt.Errorf("access code hasher not configured")
		return
	}

	now := s.now()
	var code, digest string
	_, err = s.items.Mutate(ctx, func(records []persistence.Equipment) ([]persistence.Equipment, error) {
		idx := -1
		for i, r := range records {
			if r.Status == string(equipment.StatusAvailable) && (r.ID == wanted || strings.EqualFold(r.Name, wanted)) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: no %s available", ErrUnavailable, wanted)
		}

		if code == "" {
			var gErr error
			code, digest, gErr = s.freshCode(records)
			if gErr != nil {
				return nil, gErr
			}
		}
		item, oErr := equipment.Open(itemFromRecord(records[idx]), params.Principal.UserID, strings.TrimSpace(params.MeetingID), returnBy, digest, now)
		if oErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrConflict, oErr)
		}
		out := append([]persistence.Equipment(nil), records...)
		out[idx] = itemToRecord(item)
		result = EquipmentRequestResult{Item: item, Code: code, CodeExpiresAt: item.CodeExpiresAt}
		return out, nil
	})
	if err != nil {
		err = mapRecordError(err)
		return
	}

	recordAudit(ctx, s.audit, logger, AuditEntry{Actor: params.Principal, Action: "equipment.requested", EntityType: "equipment", EntityID: result.Item.ID})
	notify(ctx, s.notifier, logger, requestNotification(params.Principal.UserID, result))
	result.Item.CodeDigest = ""
	return
}

// freshCode draws a code whose digest no pending item uses.
func (s *EquipmentService) freshCode(records []persistence.Equipment) (string, string, error) {
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		code, err := equipment.GenerateCode(s.entropy)
		if err != nil {
			return "", "", err
		}
		digest := s.hasher.Digest(code)
		clash := false
		for _, r := range records {
			if equipment.DigestsEqual(r.CodeDigest, digest) {
				clash = true
				break
			}
		}
		if !clash {
			return code, digest, nil
		}
	}
	return "", "", fmt.Errorf("could not generate a unique access code")
}

// Approve assigns the pending item that code belongs to. An expired request is
// released and reported as ErrRequestExpired, also after the janitor released it.
func (s *EquipmentService) Approve(ctx context.Context, principal Principal, code string) (item equipment.Item, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Approve", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to approve equipment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "equipment approved", "item_id", item.ID, "assigned_to", item.AssignedTo)
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if s.hasher == nil || strings.TrimSpace(code) == "" {
		err = ErrInvalidCode
		return
	}

	digest := s.hasher.Digest(code)
	now := s.now()
	var outcome error
	_, err = s.items.Mutate(ctx, func(records []persistence.Equipment) ([]persistence.Equipment, error) {
		outcome = nil
		idx := -1
		for i, r := range records {
			if r.Status == string(equipment.StatusPending) && equipment.DigestsEqual(r.CodeDigest, digest) {
				idx = i
				break
			}
		}
		if idx < 0 {
			for _, r := range records {
				if equipment.ExpiredBy(itemFromRecord(r), digest) {
					item = itemFromRecord(r)
					item.ExpiredCodeDigest = ""
					return nil, ErrRequestExpired
				}
			}
			return nil, ErrInvalidCode
		}

		next, aErr := equipment.Approve(itemFromRecord(records[idx]), digest, principal.UserID, now)
		switch {
		case errors.Is(aErr, equipment.ErrRequestExpired):
			outcome = ErrRequestExpired
		case errors.Is(aErr, equipment.ErrCodeExpired):
			return nil, ErrCodeExpired
		case errors.Is(aErr, equipment.ErrCodeMismatch):
			return nil, ErrInvalidCode
		case aErr != nil:
			return nil, fmt.Errorf("%w: %v", ErrConflict, aErr)
		}
		out := append([]persistence.Equipment(nil), records...)
		out[idx] = itemToRecord(next)
		item = next
		return out, nil
	})
	if err != nil {
		err = mapRecordError(err)
		return
	}
	if outcome != nil {
		recordAudit(ctx, s.audit, logger, AuditEntry{Actor: principal, Action: "equipment.expired", EntityType: "equipment", EntityID: item.ID})
		err = outcome
		return
	}

	recordAudit(ctx, s.audit, logger, AuditEntry{Actor: principal, Action: "equipment.approved", EntityType: "equipment", EntityID: item.ID})
	notify(ctx, s.notifier, logger, Notification{
		To:      item.AssignedTo,
		Subject: "Equipment approved: " + item.Name,
		Body:    fmt.Sprintf("%s (%s) is assigned to you. Please return it by %s.", item.Name, item.ID, item.ReturnBy.Format("2006-01-02")),
	})
	return
}

// Return records that the principal handed the item back.
func (s *EquipmentService) Return(ctx context.Context, principal Principal, itemID string) (equipment.Item, error) {
	return s.transition(ctx, principal, itemID, "Return", "equipment.returned", func(item equipment.Item, now time.Time) (equipment.Item, error) {
		return equipment.Return(item, principal.UserID, now)
	})
}

// Verify confirms a returned item and flags late returns. Administrators only.
func (s *EquipmentService) Verify(ctx context.Context, principal Principal, itemID string) (equipment.Item, error) {
	if !principal.IsAdmin() {
		return equipment.Item{}, ErrUnauthorized
	}
	return s.transition(ctx, principal, itemID, "Verify", "equipment.verified", func(item equipment.Item, now time.Time) (equipment.Item, error) {
		next, _, err := equipment.Verify(item, principal.UserID, now)
		return next, err
	})
}

func (s *EquipmentService) transition(ctx context.Context, principal Principal, itemID, operation, action string, apply func(equipment.Item, time.Time) (equipment.Item, error)) (item equipment.Item, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, operation, "principal_id", principal.UserID, "item_id", itemID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "equipment transition failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "equipment transitioned", "status", item.Status, "late", item.Late)
	}()

	now := s.now()
	_, err = s.items.Mutate(ctx, func(records []persistence.Equipment) ([]persistence.Equipment, error) {
		idx := indexEquipment(records, itemID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		next, tErr := apply(itemFromRecord(records[idx]), now)
		switch {
		case errors.Is(tErr, equipment.ErrNotHolder):
			return nil, ErrUnauthorized
		case tErr != nil:
			return nil, fmt.Errorf("%w: %v", ErrConflict, tErr)
		}
		out := append([]persistence.Equipment(nil), records...)
		out[idx] = itemToRecord(next)
		item = next
		return out, nil
	})
	if err != nil {
		err = mapRecordError(err)
		return
	}
	recordAudit(ctx, s.audit, logger, AuditEntry{Actor: principal, Action: action, EntityType: "equipment", EntityID: itemID})
	return
}

// ExpireStale releases every pending request past its hard expiry and returns
// how many items were released.
func (s *EquipmentService) ExpireStale(ctx context.Context) (released int, err error) {
	if err = s.ready(); err != nil {
		return
	}
	now := s.now()
	var ids []string
	_, err = s.items.Mutate(ctx, func(records []persistence.Equipment) ([]persistence.Equipment, error) {
		ids = ids[:0]
		out := append([]persistence.Equipment(nil), records...)
		for i, r := range out {
			next, changed := equipment.Release(itemFromRecord(r), now)
			if changed {
				out[i] = itemToRecord(next)
				ids = append(ids, r.ID)
			}
		}
		if len(ids) == 0 {
			return nil, errNoCommit
		}
		return out, nil
	})
	if errors.Is(err, errNoCommit) {
		return 0, nil
	}
	if err != nil {
		err = mapRecordError(err)
		s.loggerWith(ctx, "ExpireStale").ErrorContext(ctx, "failed to expire requests", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}

	logger := s.loggerWith(ctx, "ExpireStale")
	for _, id := range ids {
		recordAudit(ctx, s.audit, logger, AuditEntry{Actor: Principal{UserID: "system", Role: RoleSuperuser}, Action: "equipment.expired", EntityType: "equipment", EntityID: id})
	}
	logger.InfoContext(ctx, "stale equipment requests released", "released", len(ids))
	return len(ids), nil
}

func requestNotification(to string, r EquipmentRequestResult) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", r.Item.Name)
	if r.Item.MeetingID != "" {
		fmt.Fprintf(&b, "Meeting ID: %s\n", r.Item.MeetingID)
	}
	fmt.Fprintf(&b, "Return by: %s\n", r.Item.ReturnBy.Format("2006-01-02"))
	fmt.Fprintf(&b, "Access code: %s (valid until %s UTC)\n", r.Code, r.CodeExpiresAt.UTC().Format("15:04"))
	b.WriteString("Show this code to an administrator to collect the item.\n")
	return Notification{To: to, Subject: "Equipment request submitted: " + r.Item.Name, Body: b.String()}
}

func indexEquipment(records []persistence.Equipment, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
