package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/intellidesk/internal/conversation"
)

// DefaultClassifierModel is the model used for intent routing.
const DefaultClassifierModel = "orchestrator-model"

var (
	greetings = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {}, "good morning": {}, "good evening": {},
	}
	meetingKeywords = []string{
		"meeting", "meeting room", "book meeting", "schedule meeting", "reserve room",
		"conference room", "reschedule meeting", "cancel meeting",
	}
	equipmentKeywords = []string{
		"laptop", "monitor", "keyboard", "mouse", "equipment",
	}
	ticketKeywords = []string{
		"not working", "issue", "problem", "error", "wifi", "network", "slow", "crash", "failed",
	}
)

// KeywordRoute applies the authoritative keyword rules. ok is false when no
// rule matched and a model should decide.
func KeywordRoute(text string) (conversation.Classification, bool) {
	msg := strings.ToLower(strings.TrimSpace(text))
	if _, ok := greetings[strings.TrimRight(msg, "!. ")]; ok {
		return conversation.Classification{Route: conversation.RouteReply, Confidence: 1}, true
	}
	for _, rule := range []struct {
		route    conversation.Route
		keywords []string
	}{
		{conversation.RouteMeeting, meetingKeywords},
		{conversation.RouteEquipment, equipmentKeywords},
		{conversation.RouteTicket, ticketKeywords},
	} {
		for _, k := range rule.keywords {
			if strings.Contains(msg, k) {
				return conversation.Classification{Route: rule.route, Confidence: 1}, true
			}
		}
	}
	return conversation.Classification{}, false
}

// Router classifies with KeywordRoute first and falls back to the model.
type Router struct {
	client *Client
	model  string
}

// NewRouter builds a Router. A nil client disables the model step so unmatched
// text is classified as fallback.
func NewRouter(client *Client, model string) *Router {
	if model == "" {
		model = DefaultClassifierModel
	}
	return &Router{client: client, model: model}
}

const routerPrompt = `You are a STRICT intent router for IntelliDesk.

Jobs:
- portal: meeting scheduling / room booking
- equipment: physical equipment requests or returns
- ticket: technical problems or system issues
- reply: greetings or small talk
- fallback: unclear intent

Return ONLY valid JSON: {"route": "<portal|equipment|ticket|reply|fallback>", "confidence": <0..1>}

User message:
%s
`

// Classify implements conversation.Classifier.
func (r *Router) Classify(ctx context.Context, text string) (conversation.Classification, error) {
	if c, ok := KeywordRoute(text); ok {
		return c, nil
	}
	if r.client == nil {
		return conversation.Classification{Route: conversation.RouteFallback}, nil
	}

	raw, err := r.client.Generate(ctx, r.model, fmt.Sprintf(routerPrompt, text))
	if err != nil {
		return conversation.Classification{}, err
	}
	var wire struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence"`
	}
	if err := decodeObject(raw, &wire); err != nil {
		return conversation.Classification{}, err
	}
	if wire.Confidence < 0 || wire.Confidence > 1 {
		return conversation.Classification{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedOutput, wire.Confidence)
	}
	return conversation.Classification{Route: conversation.ParseRoute(wire.Route), Confidence: wire.Confidence}, nil
}
