package equipment

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

var start = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func pendingItem(t *testing.T, h *Hasher, code string) Item {
	t.Helper()
	item, err := Open(Item{ID: "eq-1", Name: "Laptop", Status: StatusAvailable}, "alice", "MTG-1", start.Add(48*time.Hour), h.Digest(code), start)
	if err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}
	return item
}

func newHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher("test-secret")
	if err != nil {
		t.Fatalf("expected hasher, got %v", err)
	}
	return h
}

func TestCheckClocks(t *testing.T) {
	h := newHasher(t)
	item := pendingItem(t, h, "ABC123")

	cases := []struct {
		name    string
		elapsed time.Duration
		want    Condition
	}{
		{name: "fresh", elapsed: time.Minute, want: ConditionValid},
		{name: "code lapsed", elapsed: 25 * time.Minute, want: ConditionCodeExpired},
		{name: "code boundary", elapsed: CodeTTL, want: ConditionCodeExpired},
		{name: "request wins over code", elapsed: RequestTTL, want: ConditionRequestExpired},
		{name: "long after", elapsed: 3 * time.Hour, want: ConditionRequestExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Check(item, start.Add(tc.elapsed)); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}

	if got := Check(Item{Status: StatusAssigned}, start); got != ConditionNotPending {
		t.Fatalf("expected not pending, got %s", got)
	}
}

func TestApprove(t *testing.T) {
	h := newHasher(t)

	t.Run("valid code assigns requester", func(t *testing.T) {
		item := pendingItem(t, h, "ABC123")
		got, err := Approve(item, h.Digest("abc123 "), "admin-1", start.Add(5*time.Minute))
		if err != nil {
			t.Fatalf("expected approval, got %v", err)
		}
		if got.Status != StatusAssigned || got.AssignedTo != "alice" || got.ApprovedBy != "admin-1" {
			t.Fatalf("unexpected item %+v", got)
		}
		if got.CodeDigest != "" || !got.CodeExpiresAt.IsZero() {
			t.Fatalf("expected code cleared, got %+v", got)
		}
	})

	t.Run("wrong code", func(t *testing.T) {
		item := pendingItem(t, h, "ABC123")
		if _, err := Approve(item, h.Digest("ZZZ999"), "admin-1", start); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected ErrCodeMismatch, got %v", err)
		}
	})

	t.Run("expired code leaves item pending", func(t *testing.T) {
		item := pendingItem(t, h, "ABC123")
		got, err := Approve(item, h.Digest("ABC123"), "admin-1", start.Add(30*time.Minute))
		if !errors.Is(err, ErrCodeExpired) {
			t.Fatalf("expected ErrCodeExpired, got %v", err)
		}
		if got.Status != StatusPending {
			t.Fatalf("expected pending, got %s", got.Status)
		}
	})

	t.Run("expired request reports request and releases", func(t *testing.T) {
		item := pendingItem(t, h, "ABC123")
		got, err := Approve(item, h.Digest("ABC123"), "admin-1", start.Add(40*time.Minute))
		if !errors.Is(err, ErrRequestExpired) {
			t.Fatalf("expected ErrRequestExpired, got %v", err)
		}
		if got.Status != StatusAvailable || got.CodeDigest != "" || got.RequestedBy != "" {
			t.Fatalf("expected released item, got %+v", got)
		}
	})

	t.Run("approve from available is invalid", func(t *testing.T) {
		if _, err := Approve(Item{Status: StatusAvailable}, "x", "admin", start); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestOpenRequiresAvailable(t *testing.T) {
	if _, err := Open(Item{Status: StatusAssigned}, "bob", "", start, "d", start); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	h := newHasher(t)
	item := pendingItem(t, h, "ABC123")

	if _, changed := Release(item, start.Add(39*time.Minute)); changed {
		t.Fatalf("expected no release before request expiry")
	}
	got, changed := Release(item, start.Add(41*time.Minute))
	if !changed || got.Status != StatusAvailable {
		t.Fatalf("expected release, got %+v", got)
	}
	if !ExpiredBy(got, h.Digest("ABC123")) || ExpiredBy(got, h.Digest("XYZ789")) {
		t.Fatalf("expected the released code to be remembered, got %+v", got)
	}
	if !got.RequestExpiredAt.Equal(start.Add(RequestTTL)) {
		t.Fatalf("expected expiry at %v, got %v", start.Add(RequestTTL), got.RequestExpiredAt)
	}

	reopened, err := Open(got, "bob", "MTG-2", start.Add(72*time.Hour), h.Digest("XYZ789"), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected reopen to succeed, got %v", err)
	}
	if reopened.ExpiredCodeDigest != "" || !reopened.RequestExpiredAt.IsZero() {
		t.Fatalf("expected open to clear the expired code, got %+v", reopened)
	}
}

func TestReturnAndVerify(t *testing.T) {
	h := newHasher(t)
	item := pendingItem(t, h, "ABC123")
	item, err := Approve(item, h.Digest("ABC123"), "admin-1", start.Add(time.Minute))
	if err != nil {
		t.Fatalf("expected approval, got %v", err)
	}

	if _, err := Return(item, "mallory", start); !errors.Is(err, ErrNotHolder) {
		t.Fatalf("expected ErrNotHolder, got %v", err)
	}

	returned, err := Return(item, "alice", start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("expected return, got %v", err)
	}
	if returned.Status != StatusReturned {
		t.Fatalf("expected returned, got %s", returned.Status)
	}

	t.Run("same day late in the evening is on time", func(t *testing.T) {
		due := returned.ReturnBy
		verified, late, err := Verify(returned, "admin-1", due.Add(23*time.Hour))
		if err != nil {
			t.Fatalf("expected verify, got %v", err)
		}
		if late || verified.Status != StatusAvailable || verified.AssignedTo != "" {
			t.Fatalf("expected on-time available item, got late=%v %+v", late, verified)
		}
	})

	t.Run("next day is late", func(t *testing.T) {
		_, late, err := Verify(returned, "admin-1", returned.ReturnBy.Add(25*time.Hour))
		if err != nil {
			t.Fatalf("expected verify, got %v", err)
		}
		if !late {
			t.Fatalf("expected late flag")
		}
	})

	t.Run("verify requires returned", func(t *testing.T) {
		if _, _, err := Verify(item, "admin-1", start); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(nil)
	if err != nil {
		t.Fatalf("expected code, got %v", err)
	}
	if len(code) != CodeLength {
		t.Fatalf("expected %d chars, got %q", CodeLength, code)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("unexpected rune %q in %q", r, code)
		}
	}

	if _, err := GenerateCode(bytes.NewReader(nil)); err == nil {
		t.Fatalf("expected error from empty entropy source")
	}
}

func TestHasher(t *testing.T) {
	if _, err := NewHasher(""); err == nil {
		t.Fatalf("expected empty secret to fail")
	}
	if _, err := NewHasher(strings.Repeat("k", 65)); err == nil {
		t.Fatalf("expected long secret to fail")
	}

	a, _ := NewHasher("one")
	b, _ := NewHasher("two")
	if a.Digest("ABC123") == b.Digest("ABC123") {
		t.Fatalf("expected keyed digests to differ")
	}
	if !DigestsEqual(a.Digest("abc123"), a.Digest("ABC123")) {
		t.Fatalf("expected case folding")
	}
	if DigestsEqual("", "") {
		t.Fatalf("expected empty digests not to match")
	}
}

func TestParseReturnDate(t *testing.T) {
	a, err := ParseReturnDate("2024-01-05")
	if err != nil {
		t.Fatalf("expected parse, got %v", err)
	}
	b, err := ParseReturnDate("5/1/2024")
	if err != nil || !a.Equal(b) {
		t.Fatalf("expected equal dates, got %v %v (%v)", a, b, err)
	}
	if _, err := ParseReturnDate("tomorrow"); err == nil {
		t.Fatalf("expected error")
	}
}
