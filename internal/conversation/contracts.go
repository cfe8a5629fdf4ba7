package conversation

import (
	"context"
	"strings"

	"github.com/example/intellidesk/internal/flow"
)

// Route is the coarse destination chosen by a Classifier.
type Route string

const (
	RouteMeeting   Route = "meeting"
	RouteEquipment Route = "equipment"
	RouteTicket    Route = "ticket"
	RouteReply     Route = "reply"
	RouteFallback  Route = "fallback"
)

// ParseRoute maps classifier spellings to a Route. Unknown values become RouteFallback.
func ParseRoute(raw string) Route {
	switch r := strings.ToLower(strings.TrimSpace(raw)); r {
	case "meeting", "portal", "meeting_booking":
		return RouteMeeting
	case "equipment", "equipment_assignment":
		return RouteEquipment
	case "ticket", "tickets":
		return RouteTicket
	case "reply", "greeting", "greeting_reply":
		return RouteReply
	}
	return RouteFallback
}

// Kind returns the flow kind a route starts, if any.
func (r Route) Kind() (flow.Kind, bool) {
	switch r {
	case RouteMeeting:
		return flow.KindMeeting, true
	case RouteEquipment:
		return flow.KindEquipment, true
	case RouteTicket:
		return flow.KindTicket, true
	}
	return "", false
}

// Classification is a classifier verdict. Confidence is in [0, 1].
type Classification struct {
	Route      Route
	Confidence float64
}

// Classifier maps an utterance to a route.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// ExtractionRequest is the context handed to an Extractor.
type ExtractionRequest struct {
	Kind          flow.Kind
	ReferenceDate string
	History       []flow.Turn
	Data          map[string]string
}

// Extraction is either a clarifying Question or, when Complete, the structured Data.
type Extraction struct {
	Complete bool
	Question string
	Data     map[string]string
}

// Extractor turns conversation history into a structured request.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (Extraction, error)
}
