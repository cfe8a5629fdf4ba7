package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/intellidesk/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContext(t *testing.T) {
	t.Parallel()

	var fromCtx, base bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&fromCtx, nil)))
	serviceLogger(ctx, slog.New(slog.NewTextHandler(&base, nil)), "MeetingService", "Book", "room", "Room 1").Info("hi")

	if base.Len() != 0 {
		t.Fatalf("expected base logger unused, got %q", base.String())
	}
	line := fromCtx.String()
	for _, want := range []string{"service=MeetingService", "operation=Book", `room="Room 1"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                   nil,
		"unauthorized":       ErrUnauthorized,
		"not_found":          fmt.Errorf("wrap: %w", ErrNotFound),
		"unavailable":        ErrUnavailable,
		"code_expired":       ErrCodeExpired,
		"request_expired":    ErrRequestExpired,
		"attempts_exhausted": ErrAttemptsExhausted,
		"no_admin_available": ErrNoAdminAvailable,
		"canceled":           context.DeadlineExceeded,
		"validation":         &ValidationError{FieldErrors: map[string]string{"a": "b"}},
		"unexpected":         io.EOF,
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("expected %q for %v, got %q", want, err, got)
		}
	}
}
