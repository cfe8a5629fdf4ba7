package application

import (
	"context"
	"log/slog"
)

// Records is a typed record list with optimistic read-modify-write, as offered by
// persistence.Collection.
type Records[T any] interface {
	List(ctx context.Context) ([]T, error)
	Mutate(ctx context.Context, fn func(records []T) ([]T, error)) ([]T, error)
}

// AuditRecorder appends entries to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditReader returns the most recent audit records, oldest first. A limit of
// zero or less returns every record.
type AuditReader interface {
	Read(ctx context.Context, limit int) ([]AuditRecord, error)
}

// Notifier delivers outbound notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// BridgeProvisioner schedules remote sessions on a video bridge.
type BridgeProvisioner interface {
	Provision(ctx context.Context, req BridgeRequest) (BridgeSession, error)
}

// Troubleshooter produces automated guidance for an IT issue. previous holds the
// steps already suggested so a follow-up round can try something else.
type Troubleshooter interface {
	Troubleshoot(ctx context.Context, issue string, previous []string) (TroubleshootResult, error)
}

// recordAudit writes entry when a recorder is configured. Failures are logged
// and never undo the change being audited.
func recordAudit(ctx context.Context, recorder AuditRecorder, logger *slog.Logger, entry AuditEntry) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(ctx, entry); err != nil {
		logger.WarnContext(ctx, "failed to record audit entry", "action", entry.Action, "entity_id", entry.EntityID, "error", err)
	}
}

// notify sends n when a notifier is configured, logging failures.
func notify(ctx context.Context, notifier Notifier, logger *slog.Logger, n Notification) {
	if notifier == nil || n.To == "" {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		logger.WarnContext(ctx, "failed to send notification", "to", n.To, "subject", n.Subject, "error", err)
	}
}
