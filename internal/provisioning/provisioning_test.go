package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/example/intellidesk/internal/application"
)

func TestWebexClientProvision(t *testing.T) {
	request := application.BridgeRequest{
		Account:  "WebEx-2",
		Title:    "Design review",
		Start:    time.Date(2024, time.June, 10, 14, 30, 0, 0, time.UTC),
		Duration: 90 * time.Minute,
	}

	t.Run("posts with the account token", func(t *testing.T) {
		var gotAuth string
		var gotBody createMeetingRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode body: %v", err)
			}
			_, _ = w.Write([]byte(`{"id":"bridge-1","joinWebexMeetingUrl":"https://example.webex.com/j/1"}`))
		}))
		defer server.Close()

		client := NewWebexClient(server.Client(), server.URL, map[string]string{"WEBEX_2": "secret-2"})
		session, err := client.Provision(context.Background(), request)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if session.ID != "bridge-1" || session.JoinURL != "https://example.webex.com/j/1" {
			t.Fatalf("unexpected session %+v", session)
		}
		if gotAuth != "Bearer secret-2" {
			t.Fatalf("expected bearer token, got %q", gotAuth)
		}
		want := createMeetingRequest{Title: "Design review", Start: "2024-06-10T14:30:00", Duration: 90, MeetingType: "meetingCenter"}
		if gotBody != want {
			t.Fatalf("expected body %+v, got %+v", want, gotBody)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		client := NewWebexClient(nil, "http://127.0.0.1:1", nil)
		if _, err := client.Provision(context.Background(), request); !errors.Is(err, ErrNoToken) {
			t.Fatalf("expected ErrNoToken, got %v", err)
		}
	})

	t.Run("api error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewWebexClient(server.Client(), server.URL, map[string]string{"WebEx-2": "secret-2"})
		_, err := client.Provision(context.Background(), request)
		var bridgeErr *BridgeError
		if !errors.As(err, &bridgeErr) || bridgeErr.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected BridgeError 429, got %v", err)
		}
	})
}

func TestAccountKey(t *testing.T) {
	if got := AccountKey(" WebEx-1 "); got != "WEBEX_1" {
		t.Fatalf("expected WEBEX_1, got %q", got)
	}
}

func TestSMTPNotifier(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth

	notifier := NewSMTPNotifier(SMTPConfig{Addr: "mail.example.com:587", From: "desk@example.com", Username: "desk", Password: "pw", Domain: "example.com"})
	notifier.now = func() time.Time { return time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC) }
	notifier.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, auth, from, to, msg
		return nil
	}

	err := notifier.Notify(context.Background(), application.Notification{To: "alice", Subject: "Meeting\nconfirmed", Body: "Room 1\nat 10:00"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotAddr != "mail.example.com:587" || gotFrom != "desk@example.com" || gotAuth == nil {
		t.Fatalf("unexpected relay call %q %q %v", gotAddr, gotFrom, gotAuth)
	}
	if len(gotTo) != 1 || gotTo[0] != "alice@example.com" {
		t.Fatalf("expected alice@example.com, got %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Meeting confirmed\r\n") || !strings.HasSuffix(msg, "Room 1\r\nat 10:00") {
		t.Fatalf("unexpected message %q", msg)
	}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := notifier.Notify(ctx, application.Notification{To: "bob"}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := notifier.Notify(context.Background(), application.Notification{To: "alice", Subject: "Hello"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"subject":"Hello"`) {
		t.Fatalf("expected logged notification, got %s", buf.String())
	}
}
