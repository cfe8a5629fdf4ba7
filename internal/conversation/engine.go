// Package conversation drives multi-turn flows from free text to committed
// records.
//
// Each utterance either continues the user's most recently touched flow or is
// classified to start a new one. Collecting flows loop through an Extractor
// until the request is complete, then ask for an explicit yes or no. Meeting
// confirmations may detour through slot selection when the requested time is
// full. Ticket flows skip confirmation and alternate troubleshooting rounds
// with "did that fix it" follow-ups until the ticket is resolved or escalated.
//
// Adapter failures never surface as errors: the engine answers with
// RetryQuestion and leaves the flow as it was.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/flow"
	"github.com/example/intellidesk/internal/logging"
)

var (
	// ErrEmptyMessage is returned for blank utterances.
	ErrEmptyMessage = errors.New("conversation: message text is required")
	// ErrNoUser is returned when a message carries no user id.
	ErrNoUser = errors.New("conversation: user id is required")
)

// Defaults for Config fields left zero.
const (
	DefaultConfidenceThreshold = 0.6
	DefaultHistoryWindow       = 12
	DefaultAdapterTimeout      = 20 * time.Second
	DefaultReplayTTL           = 10 * time.Minute
	DefaultReplaySize          = 1024
)

// Config tunes the engine.
type Config struct {
	// ConfidenceThreshold is the lowest classifier confidence that starts a flow.
	ConfidenceThreshold float64
	// HistoryWindow bounds the turns handed to the extractor.
	HistoryWindow int
	// AdapterTimeout bounds each classifier and extractor call.
	AdapterTimeout time.Duration
	// ReplayTTL is how long an idempotency key replays its reply.
	ReplayTTL  time.Duration
	ReplaySize int
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = DefaultAdapterTimeout
	}
	if c.ReplayTTL <= 0 {
		c.ReplayTTL = DefaultReplayTTL
	}
	if c.ReplaySize <= 0 {
		c.ReplaySize = DefaultReplaySize
	}
	return c
}

// MeetingBooker commits meeting bookings.
type MeetingBooker interface {
	Book(ctx context.Context, params application.BookMeetingParams) (application.BookingResult, error)
}

// EquipmentRequester places equipment on hold.
type EquipmentRequester interface {
	Request(ctx context.Context, params application.RequestEquipmentParams) (application.EquipmentRequestResult, error)
}

// TicketDesk opens and routes IT tickets.
type TicketDesk interface {
	Create(ctx context.Context, params application.CreateTicketParams) (application.Ticket, error)
	Troubleshoot(ctx context.Context, principal application.Principal, ticketID string) (application.Ticket, application.TroubleshootResult, error)
	Resolve(ctx context.Context, principal application.Principal, ticketID string) (application.Ticket, error)
	Escalate(ctx context.Context, principal application.Principal, ticketID string) (application.Ticket, error)
}

// Services groups the commit-side collaborators.
type Services struct {
	Meetings  MeetingBooker
	Equipment EquipmentRequester
	Tickets   TicketDesk
}

// Message is one inbound utterance.
type Message struct {
	Principal application.Principal
	Text      string
	// IdempotencyKey, when set, makes a retried message replay the first reply.
	IdempotencyKey string
}

// Outcome labels what a turn did.
type Outcome string

const (
	OutcomeGreeted         Outcome = "greeted"
	OutcomeDeclined        Outcome = "declined"
	OutcomeRetry           Outcome = "retry"
	OutcomeAsked           Outcome = "asked"
	OutcomeConfirming      Outcome = "confirming"
	OutcomeSelectingSlot   Outcome = "selecting_slot"
	OutcomeCompleted       Outcome = "completed"
	OutcomeReset           Outcome = "reset"
	OutcomeTroubleshooting Outcome = "troubleshooting"
	OutcomeEscalated       Outcome = "escalated"
	OutcomeExpired         Outcome = "expired"
)

// Reply is the engine's answer to a Message.
type Reply struct {
	Text       string    `json:"reply"`
	FlowID     string    `json:"flow_id,omitempty"`
	Kind       flow.Kind `json:"kind,omitempty"`
	Step       flow.Step `json:"step,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Candidates []string  `json:"candidates,omitempty"`
	Replayed   bool      `json:"replayed,omitempty"`
}

// Engine is the flow orchestration state machine. It is safe for concurrent
// use; turns from one user are serialized.
type Engine struct {
	store      flow.Store
	locks      *flow.KeyedMutex
	classifier Classifier
	extractor  Extractor
	services   Services
	audit      application.AuditRecorder
	replay     *expirable.LRU[string, Reply]
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine builds an engine over store.
func NewEngine(store flow.Store, classifier Classifier, extractor Extractor, services Services, cfg Config) *Engine {
	return NewEngineWithLogger(store, classifier, extractor, services, cfg, nil)
}

// NewEngineWithLogger builds an engine with a specified logger.
func NewEngineWithLogger(store flow.Store, classifier Classifier, extractor Extractor, services Services, cfg Config, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		store:      store,
		locks:      flow.NewKeyedMutex(),
		classifier: classifier,
		extractor:  extractor,
		services:   services,
		replay:     expirable.NewLRU[string, Reply](cfg.ReplaySize, nil, cfg.ReplayTTL),
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// UseAudit sets the recorder for flow lifecycle events.
func (e *Engine) UseAudit(recorder application.AuditRecorder) { e.audit = recorder }

// UseClock overrides the clock used for relative times in replies.
func (e *Engine) UseClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

func (e *Engine) loggerFor(ctx context.Context, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = e.logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(append([]any{"component", "conversation"}, attrs...)...)
}

// Handle processes one utterance and returns the reply to show the user.
func (e *Engine) Handle(ctx context.Context, msg Message) (reply Reply, err error) {
	msg.Principal.UserID = strings.TrimSpace(msg.Principal.UserID)
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Principal.UserID == "" {
		return Reply{}, ErrNoUser
	}
	if msg.Text == "" {
		return Reply{}, ErrEmptyMessage
	}
	userID := msg.Principal.UserID
	logger := e.loggerFor(ctx, "user_id", userID)

	unlock, err := e.locks.Lock(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	var replayKey string
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		replayKey = userID + "\x00" + key
		if prev, ok := e.replay.Get(replayKey); ok {
			prev.Replayed = true
			logger.InfoContext(ctx, "replayed turn", "flow_id", prev.FlowID, "outcome", prev.Outcome)
			return prev, nil
		}
	}

	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "turn failed", "error", err, "error_kind", application.ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "turn handled",
			"flow_id", reply.FlowID,
			"kind", reply.Kind,
			"step", reply.Step,
			"outcome", reply.Outcome,
		)
		if replayKey != "" {
			e.replay.Add(replayKey, reply)
		}
	}()

	if current, ok := flow.LastTouched(e.store.Active(userID)); ok {
		reply, err = e.advance(ctx, logger, msg, current)
	} else {
		reply, err = e.start(ctx, logger, msg)
	}
	if errors.Is(err, flow.ErrNotFound) {
		// The flow lapsed while an adapter call was in flight.
		return Reply{Text: ExpiredText, Outcome: OutcomeExpired}, nil
	}
	return reply, err
}

// Cancel discards one of userID's flows.
func (e *Engine) Cancel(ctx context.Context, userID, flowID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrNoUser
	}
	unlock, err := e.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := e.store.Get(userID, flowID)
	if err != nil {
		return err
	}
	if err := e.store.Delete(userID, flowID); err != nil {
		return err
	}
	logger := e.loggerFor(ctx, "user_id", userID)
	e.record(ctx, logger, application.Principal{UserID: userID}, "flow.cancelled", f.ID)
	logger.InfoContext(ctx, "flow cancelled", "flow_id", f.ID, "kind", f.Kind)
	return nil
}

func (e *Engine) start(ctx context.Context, logger *slog.Logger, msg Message) (Reply, error) {
	if e.classifier == nil {
		return Reply{Text: FallbackText, Outcome: OutcomeDeclined}, nil
	}
	actx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
	verdict, err := e.classifier.Classify(actx, msg.Text)
	cancel()
	if err != nil {
		logger.WarnContext(ctx, "classifier failed", "error", err)
		return Reply{Text: FallbackText, Outcome: OutcomeDeclined}, nil
	}
	if verdict.Route == RouteReply {
		return Reply{Text: GreetingText, Outcome: OutcomeGreeted}, nil
	}
	kind, ok := verdict.Route.Kind()
	if !ok || verdict.Confidence < e.cfg.ConfidenceThreshold {
		logger.DebugContext(ctx, "no flow started", "route", verdict.Route, "confidence", verdict.Confidence)
		return Reply{Text: FallbackText, Outcome: OutcomeDeclined}, nil
	}

	f, err := e.store.Create(msg.Principal.UserID, kind)
	if err != nil {
		return Reply{}, err
	}
	e.record(ctx, logger, msg.Principal, "flow.started", f.ID)
	if kind == flow.KindTicket {
		return e.openTicket(ctx, logger, msg, f)
	}
	return e.collect(ctx, logger, msg, f)
}

func (e *Engine) advance(ctx context.Context, logger *slog.Logger, msg Message, f flow.Flow) (Reply, error) {
	switch {
	case f.Kind == flow.KindTicket:
		return e.followUpTicket(ctx, logger, msg, f)
	case f.Step == flow.StepCollecting:
		return e.collect(ctx, logger, msg, f)
	case f.SelectingSlot():
		return e.chooseSlot(ctx, logger, msg, f)
	default:
		return e.confirm(ctx, logger, msg, f)
	}
}

// collect runs one extraction round. The user's turn is stored only once the
// extractor produced a usable answer.
func (e *Engine) collect(ctx context.Context, logger *slog.Logger, msg Message, f flow.Flow) (Reply, error) {
	userID := msg.Principal.UserID
	history := append(f.History, flow.Turn{Speaker: flow.SpeakerUser, Text: msg.Text, At: e.now()})
	if len(history) > e.cfg.HistoryWindow {
		history = history[len(history)-e.cfg.HistoryWindow:]
	}

	if e.extractor == nil {
		return e.hold(f, RetryQuestion), nil
	}
	actx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
	extraction, err := e.extractor.Extract(actx, ExtractionRequest{
		Kind:          f.Kind,
		ReferenceDate: f.ReferenceDate,
		History:       history,
		Data:          f.Data,
	})
	cancel()
	if err != nil {
		logger.WarnContext(ctx, "extraction failed", "flow_id", f.ID, "error", err)
		return e.hold(f, RetryQuestion), nil
	}

	if f, err = e.store.AppendHistory(userID, f.ID, flow.SpeakerUser, msg.Text); err != nil {
		return Reply{}, err
	}
	if !extraction.Complete {
		question := strings.TrimSpace(extraction.Question)
		if question == "" {
			question = RetryQuestion
		}
		return e.say(userID, f, question, OutcomeAsked)
	}

	if f, err = e.store.UpdateData(userID, f.ID, extraction.Data); err != nil {
		return Reply{}, err
	}
	if missing := missingFields(f.Kind, f.Data); len(missing) > 0 {
		return e.say(userID, f, fmt.Sprintf("I still need %s.", joinFields(missing)), OutcomeAsked)
	}
	if f, err = e.store.UpdateStep(userID, f.ID, flow.StepConfirming); err != nil {
		return Reply{}, err
	}
	return e.say(userID, f, confirmationPrompt(f), OutcomeConfirming)
}

func (e *Engine) confirm(ctx context.Context, logger *slog.Logger, msg Message, f flow.Flow) (Reply, error) {
	f, err := e.store.AppendHistory(msg.Principal.UserID, f.ID, flow.SpeakerUser, msg.Text)
	if err != nil {
		return Reply{}, err
	}
	switch parseAnswer(msg.Text) {
	case answerYes:
		switch f.Kind {
		case flow.KindMeeting:
			return e.bookMeeting(ctx, logger, msg.Principal, f)
		case flow.KindEquipment:
			return e.requestEquipment(ctx, logger, msg.Principal, f)
		}
		return Reply{}, fmt.Errorf("%w: %q", flow.ErrUnsupportedKind, f.Kind)
	case answerNo:
		return e.restart(ctx, logger, msg.Principal, f, "No problem, let's start over.")
	}
	return e.say(msg.Principal.UserID, f, ConfirmReminder, OutcomeConfirming)
}

func (e *Engine) chooseSlot(ctx context.Context, logger *slog.Logger, msg Message, f flow.Flow) (Reply, error) {
	userID := msg.Principal.UserID
	f, err := e.store.AppendHistory(userID, f.ID, flow.SpeakerUser, msg.Text)
	if err != nil {
		return Reply{}, err
	}
	choice, ok := matchCandidate(msg.Text, f.Candidates)
	if !ok {
		if parseAnswer(msg.Text) == answerNo {
			return e.restart(ctx, logger, msg.Principal, f, "No problem, let's start over.")
		}
		return e.say(userID, f, slotReminder(f.Candidates), OutcomeSelectingSlot)
	}

	if f, err = e.store.UpdateData(userID, f.ID, map[string]string{"date": choice.Date, "start_time": choice.StartTime}); err != nil {
		return Reply{}, err
	}
	if f, err = e.store.SetCandidates(userID, f.ID, nil); err != nil {
		return Reply{}, err
	}
	return e.bookMeeting(ctx, logger, msg.Principal, f)
}

// say records an assistant turn and shapes the reply around the updated flow.
func (e *Engine) say(userID string, f flow.Flow, text string, outcome Outcome) (Reply, error) {
	f, err := e.store.AppendHistory(userID, f.ID, flow.SpeakerAssistant, text)
	if err != nil {
		return Reply{}, err
	}
	reply := e.hold(f, text)
	reply.Outcome = outcome
	return reply, nil
}

// hold answers without touching the flow.
func (e *Engine) hold(f flow.Flow, text string) Reply {
	reply := Reply{Text: text, FlowID: f.ID, Kind: f.Kind, Step: f.Step, Outcome: OutcomeRetry}
	if f.SelectingSlot() {
		reply.Candidates = candidateLabels(f.Candidates)
	}
	return reply
}

// restart replaces f with a fresh flow of the same kind and asks its opening question.
func (e *Engine) restart(ctx context.Context, logger *slog.Logger, principal application.Principal, f flow.Flow, preface string) (Reply, error) {
	fresh, err := e.store.Reset(principal.UserID, f.ID)
	if err != nil {
		return Reply{}, err
	}
	e.record(ctx, logger, principal, "flow.reset", fresh.ID)
	logger.InfoContext(ctx, "flow reset", "old_flow_id", f.ID, "flow_id", fresh.ID, "kind", fresh.Kind)
	return e.say(principal.UserID, fresh, strings.TrimSpace(preface+" "+openingQuestion(fresh.Kind)), OutcomeReset)
}

// finish deletes a flow whose task reached a terminal state.
func (e *Engine) finish(ctx context.Context, logger *slog.Logger, principal application.Principal, f flow.Flow, text string, outcome Outcome) (Reply, error) {
	if err := e.store.Delete(principal.UserID, f.ID); err != nil {
		return Reply{}, err
	}
	e.record(ctx, logger, principal, "flow.completed", f.ID)
	return Reply{Text: text, FlowID: f.ID, Kind: f.Kind, Outcome: outcome}, nil
}

func (e *Engine) record(ctx context.Context, logger *slog.Logger, principal application.Principal, action, flowID string) {
	if e.audit == nil {
		return
	}
	entry := application.AuditEntry{Actor: principal, Action: action, EntityType: "flow", EntityID: flowID}
	if err := e.audit.Record(ctx, entry); err != nil {
		logger.WarnContext(ctx, "failed to record audit entry", "action", action, "error", err)
	}
}
