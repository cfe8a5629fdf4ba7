package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/example/intellidesk/internal/conversation"
	"github.com/example/intellidesk/internal/flow"
)

type generateCall struct {
	Model  string
	Prompt string
}

func newModelServer(t *testing.T, reply func(model string) (int, string)) (*Client, func() []generateCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []generateCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream {
			http.Error(w, "streaming not expected", http.StatusBadRequest)
			return
		}
		mu.Lock()
		calls = append(calls, generateCall{Model: req.Model, Prompt: req.Prompt})
		mu.Unlock()

		status, text := reply(req.Model)
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": text})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": text, "done": true})
	}))
	t.Cleanup(srv.Close)

	return NewClient(srv.Client(), srv.URL), func() []generateCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]generateCall(nil), calls...)
	}
}

func TestClientGenerate(t *testing.T) {
	t.Run("returns response text", func(t *testing.T) {
		client, calls := newModelServer(t, func(string) (int, string) { return http.StatusOK, "hello" })
		got, err := client.Generate(context.Background(), "m", "p")
		if err != nil || got != "hello" {
			t.Fatalf("expected hello, got %q (%v)", got, err)
		}
		if c := calls(); len(c) != 1 || c[0].Model != "m" || c[0].Prompt != "p" {
			t.Fatalf("unexpected calls %+v", c)
		}
	})

	t.Run("surfaces provider errors", func(t *testing.T) {
		client, _ := newModelServer(t, func(string) (int, string) { return http.StatusNotFound, "model not found" })
		_, err := client.Generate(context.Background(), "m", "p")
		var perr *ProviderError
		if !errors.As(err, &perr) || perr.StatusCode != http.StatusNotFound || perr.Message != "model not found" {
			t.Fatalf("expected provider error, got %v", err)
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		client, _ := newModelServer(t, func(string) (int, string) { return http.StatusOK, "x" })
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := client.Generate(ctx, "m", "p"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestKeywordRoute(t *testing.T) {
	cases := []struct {
		text  string
		route conversation.Route
		ok    bool
	}{
		{"Hello!", conversation.RouteReply, true},
		{"good morning", conversation.RouteReply, true},
		{"Book a meeting room for tomorrow", conversation.RouteMeeting, true},
		{"I need a laptop", conversation.RouteEquipment, true},
		{"the wifi is not working", conversation.RouteTicket, true},
		{"hello, I need a monitor", conversation.RouteEquipment, true},
		{"what's for lunch", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := KeywordRoute(tc.text)
			if ok != tc.ok || got.Route != tc.route {
				t.Fatalf("expected %q/%v, got %q/%v", tc.route, tc.ok, got.Route, ok)
			}
			if ok && got.Confidence != 1 {
				t.Fatalf("expected confidence 1, got %v", got.Confidence)
			}
		})
	}
}

func TestRouterClassify(t *testing.T) {
	t.Run("keywords skip the model", func(t *testing.T) {
		client, calls := newModelServer(t, func(string) (int, string) { return http.StatusOK, "{}" })
		got, err := NewRouter(client, "").Classify(context.Background(), "reserve room please")
		if err != nil || got.Route != conversation.RouteMeeting {
			t.Fatalf("expected meeting route, got %+v (%v)", got, err)
		}
		if n := len(calls()); n != 0 {
			t.Fatalf("expected no model calls, got %d", n)
		}
	})

	t.Run("model verdict is parsed", func(t *testing.T) {
		client, calls := newModelServer(t, func(string) (int, string) {
			return http.StatusOK, "Sure!\n```json\n{\"route\": \"portal\", \"confidence\": 0.82,}\n```"
		})
		got, err := NewRouter(client, "").Classify(context.Background(), "can we sync on thursday")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Route != conversation.RouteMeeting || got.Confidence != 0.82 {
			t.Fatalf("expected meeting at 0.82, got %+v", got)
		}
		if c := calls(); len(c) != 1 || c[0].Model != DefaultClassifierModel {
			t.Fatalf("expected one call to %s, got %+v", DefaultClassifierModel, c)
		}
	})

	t.Run("out of range confidence is malformed", func(t *testing.T) {
		client, _ := newModelServer(t, func(string) (int, string) {
			return http.StatusOK, `{"route":"ticket","confidence":7}`
		})
		if _, err := NewRouter(client, "").Classify(context.Background(), "hmm"); !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("expected ErrMalformedOutput, got %v", err)
		}
	})

	t.Run("no client classifies as fallback", func(t *testing.T) {
		got, err := NewRouter(nil, "").Classify(context.Background(), "hmm")
		if err != nil || got.Route != conversation.RouteFallback {
			t.Fatalf("expected fallback, got %+v (%v)", got, err)
		}
	})
}

func TestExtractionPrompt(t *testing.T) {
	prompt := ExtractionPrompt(conversation.ExtractionRequest{
		Kind:          flow.KindMeeting,
		ReferenceDate: "10/06/2024",
		Data:          map[string]string{"title": "Sync"},
		History: []flow.Turn{
			{Speaker: flow.SpeakerUser, Text: "book a room"},
			{Speaker: flow.SpeakerAssistant, Text: "For when?"},
		},
	})
	want := strings.Join([]string{
		`intent: "meeting"`,
		`current_date: "10/06/2024"`,
		`known title: "Sync"`,
		`USER: book a room`,
		`ASSISTANT: For when?`,
	}, "\n")
	if prompt != want {
		t.Fatalf("expected prompt\n%s\ngot\n%s", want, prompt)
	}
}

func TestParseExtraction(t *testing.T) {
	t.Run("incomplete carries the question", func(t *testing.T) {
		got, err := ParseExtraction(`{"status":"incomplete","question":"What time?"}`)
		if err != nil || got.Complete || got.Question != "What time?" {
			t.Fatalf("expected question, got %+v (%v)", got, err)
		}
	})

	t.Run("complete with data object", func(t *testing.T) {
		got, err := ParseExtraction(`{"status":"complete","data":{"title":"Sync","participants":4,"duration":"1:00"}}`)
		if err != nil || !got.Complete {
			t.Fatalf("expected complete, got %+v (%v)", got, err)
		}
		if got.Data["participants"] != "4" || got.Data["title"] != "Sync" || got.Data["duration"] != "1:00" {
			t.Fatalf("unexpected data %+v", got.Data)
		}
	})

	t.Run("complete with flat fields", func(t *testing.T) {
		got, err := ParseExtraction(`{"status":"complete","item":"laptop","return_by":"12/06/2024"}`)
		if err != nil || got.Data["item"] != "laptop" || got.Data["return_by"] != "12/06/2024" {
			t.Fatalf("expected flat data, got %+v (%v)", got, err)
		}
		if _, ok := got.Data["status"]; ok {
			t.Fatalf("status must not leak into data")
		}
	})

	t.Run("malformed replies are rejected", func(t *testing.T) {
		for _, raw := range []string{
			"I could not understand",
			`{"status":"incomplete"}`,
			`{"status":"done"}`,
			`{"status":"complete","data":{}}`,
		} {
			if _, err := ParseExtraction(raw); !errors.Is(err, ErrMalformedOutput) {
				t.Fatalf("expected ErrMalformedOutput for %q, got %v", raw, err)
			}
		}
	})
}

func TestExtractorExtract(t *testing.T) {
	client, calls := newModelServer(t, func(string) (int, string) {
		return http.StatusOK, `{"status":"incomplete","question":"How many people?"}`
	})
	got, err := NewExtractor(client, "").Extract(context.Background(), conversation.ExtractionRequest{
		Kind:          flow.KindMeeting,
		ReferenceDate: "10/06/2024",
		History:       []flow.Turn{{Speaker: flow.SpeakerUser, Text: "book a meeting"}},
	})
	if err != nil || got.Question != "How many people?" {
		t.Fatalf("expected question, got %+v (%v)", got, err)
	}
	if c := calls(); len(c) != 1 || c[0].Model != DefaultExtractorModel || !strings.Contains(c[0].Prompt, "USER: book a meeting") {
		t.Fatalf("unexpected calls %+v", c)
	}
}

func TestTroubleshooter(t *testing.T) {
	t.Run("returns steps and lists previous attempts", func(t *testing.T) {
		client, calls := newModelServer(t, func(string) (int, string) {
			return http.StatusOK, `{"steps":["Restart the router","Forget and rejoin the network"],"resolved":false}`
		})
		got, err := NewTroubleshooter(client, "").Troubleshoot(context.Background(), "wifi drops", []string{"Toggle wifi"})
		if err != nil || len(got.Steps) != 2 || got.Resolved {
			t.Fatalf("expected two unresolved steps, got %+v (%v)", got, err)
		}
		c := calls()
		if len(c) != 1 || c[0].Model != DefaultTroubleshootModel {
			t.Fatalf("unexpected calls %+v", c)
		}
		if !strings.Contains(c[0].Prompt, "wifi drops") || !strings.Contains(c[0].Prompt, "- Toggle wifi") {
			t.Fatalf("prompt missing issue or previous steps: %s", c[0].Prompt)
		}
	})

	t.Run("empty steps are malformed", func(t *testing.T) {
		if _, err := ParseTroubleshoot(`{"steps":[],"resolved":true}`); !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("expected ErrMalformedOutput, got %v", err)
		}
	})
}
