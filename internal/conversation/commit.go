package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/flow"
	"github.com/example/intellidesk/internal/scheduler"
)

func meetingInput(data map[string]string) application.MeetingInput {
	participants, _ := strconv.Atoi(strings.TrimSpace(data["participants"]))
	return application.MeetingInput{
		Title:        data["title"],
		Date:         data["date"],
		StartTime:    data["start_time"],
		Duration:     data["duration"],
		Participants: participants,
		Medium:       data["medium"],
	}
}

// describeInvalid lists the fields a ValidationError rejected, in a stable order.
func describeInvalid(vErr *application.ValidationError) string {
	fields := make([]string, 0, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return strings.Join(fields, "; ")
}

func (e *Engine) bookMeeting(ctx context.Context, logger *slog.Logger, principal application.Principal, f flow.Flow) (Reply, error) {
	if e.services.Meetings == nil {
		return Reply{}, fmt.Errorf("conversation: meeting booker not configured")
	}
	result, err := e.services.Meetings.Book(ctx, application.BookMeetingParams{Principal: principal, Input: meetingInput(f.Data)})
	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		return e.restart(ctx, logger, principal, f, "I couldn't use those details ("+describeInvalid(vErr)+").")
	case err != nil:
		return Reply{}, err
	}

	switch result.Outcome {
	case scheduler.OutcomeAssigned:
		m := result.Meeting
		text := fmt.Sprintf("Booked %s for %q on %s at %s (meeting %s).", m.Room, m.Title, m.Date, m.StartTime, m.ID)
		switch {
		case m.BridgeLink != "":
			text += " Join link: " + m.BridgeLink
		case m.Medium == scheduler.MediumRemote:
			text += " The video link will follow by email."
		}
		return e.finish(ctx, logger, principal, f, text, OutcomeCompleted)

	case scheduler.OutcomeNeedsSlotChoice:
		candidates := make([]flow.Candidate, len(result.Suggestions))
		for i, s := range result.Suggestions {
			candidates[i] = flow.Candidate{Date: s.Date, StartTime: s.StartTime}
		}
		if f, err = e.store.SetCandidates(principal.UserID, f.ID, candidates); err != nil {
			return Reply{}, err
		}
		if f.Step != flow.StepConfirming {
			if f, err = e.store.UpdateStep(principal.UserID, f.ID, flow.StepConfirming); err != nil {
				return Reply{}, err
			}
		}
		return e.say(principal.UserID, f, slotPrompt(candidates), OutcomeSelectingSlot)
	}

	return e.restart(ctx, logger, principal, f,
		fmt.Sprintf("No room for %s participants is free at that time or within the following %d minutes.",
			f.Data["participants"], int((scheduler.SuggestionStep*scheduler.SuggestionAttempts).Minutes())))
}

func (e *Engine) requestEquipment(ctx context.Context, logger *slog.Logger, principal application.Principal, f flow.Flow) (Reply, error) {
	if e.services.Equipment == nil {
		return Reply{}, fmt.Errorf("conversation: equipment requester not configured")
	}
	result, err := e.services.Equipment.Request(ctx, application.RequestEquipmentParams{
		Principal: principal,
		Item:      f.Data["item"],
		MeetingID: f.Data["meeting_id"],
		ReturnBy:  f.Data["return_by"],
	})
	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		return e.restart(ctx, logger, principal, f, "I couldn't use those details ("+describeInvalid(vErr)+").")
	case errors.Is(err, application.ErrUnavailable):
		return e.restart(ctx, logger, principal, f, fmt.Sprintf("No %s is available right now.", f.Data["item"]))
	case err != nil:
		return Reply{}, err
	}

	now := e.now()
	text := fmt.Sprintf("%s is on hold for you pending approval. I've emailed a one-time access code; it expires %s and the hold lapses %s.",
		result.Item.Name, relative(now, result.CodeExpiresAt), relative(now, result.Item.RequestExpiresAt))
	return e.finish(ctx, logger, principal, f, text, OutcomeCompleted)
}

func (e *Engine) openTicket(ctx context.Context, logger *slog.Logger, msg Message, f flow.Flow) (Reply, error) {
	if e.services.Tickets == nil {
		return Reply{}, fmt.Errorf("conversation: ticket desk not configured")
	}
	userID := msg.Principal.UserID
	f, err := e.store.AppendHistory(userID, f.ID, flow.SpeakerUser, msg.Text)
	if err != nil {
		return Reply{}, err
	}
	ticket, err := e.services.Tickets.Create(ctx, application.CreateTicketParams{Principal: msg.Principal, Issue: msg.Text})
	if err != nil {
		return Reply{}, err
	}
	if f, err = e.store.UpdateData(userID, f.ID, map[string]string{"ticket_id": ticket.ID, "issue": ticket.Issue}); err != nil {
		return Reply{}, err
	}
	return e.troubleshoot(ctx, logger, msg.Principal, f, fmt.Sprintf("I've opened ticket %s. Please try the following:", ticket.ID))
}

func (e *Engine) troubleshoot(ctx context.Context, logger *slog.Logger, principal application.Principal, f flow.Flow, intro string) (Reply, error) {
	ticketID := f.Data["ticket_id"]
	ticket, result, err := e.services.Tickets.Troubleshoot(ctx, principal, ticketID)
	switch {
	case errors.Is(err, application.ErrAttemptsExhausted):
		return e.escalate(ctx, logger, principal, f)
	case err != nil:
		return Reply{}, err
	}
	if result.Resolved || ticket.Status == application.TicketResolved {
		return e.finish(ctx, logger, principal, f,
			fmt.Sprintf("Good news: that should already be sorted. Ticket %s is marked resolved.", ticketID), OutcomeCompleted)
	}
	if f.Step != flow.StepConfirming {
		if f, err = e.store.UpdateStep(principal.UserID, f.ID, flow.StepConfirming); err != nil {
			return Reply{}, err
		}
	}
	return e.say(principal.UserID, f, troubleshootingText(intro, result.Steps), OutcomeTroubleshooting)
}

func (e *Engine) followUpTicket(ctx context.Context, logger *slog.Logger, msg Message, f flow.Flow) (Reply, error) {
	if strings.TrimSpace(f.Data["ticket_id"]) == "" {
		return e.openTicket(ctx, logger, msg, f)
	}
	f, err := e.store.AppendHistory(msg.Principal.UserID, f.ID, flow.SpeakerUser, msg.Text)
	if err != nil {
		return Reply{}, err
	}
	switch parseAnswer(msg.Text) {
	case answerYes:
		ticket, err := e.services.Tickets.Resolve(ctx, msg.Principal, f.Data["ticket_id"])
		if err != nil {
			return Reply{}, err
		}
		return e.finish(ctx, logger, msg.Principal, f, fmt.Sprintf("Great! Ticket %s is now resolved.", ticket.ID), OutcomeCompleted)
	case answerNo:
		return e.troubleshoot(ctx, logger, msg.Principal, f, "Let's try something else:")
	}
	return e.say(msg.Principal.UserID, f, TicketReminder, OutcomeTroubleshooting)
}

func (e *Engine) escalate(ctx context.Context, logger *slog.Logger, principal application.Principal, f flow.Flow) (Reply, error) {
	ticketID := f.Data["ticket_id"]
	ticket, err := e.services.Tickets.Escalate(ctx, principal, ticketID)
	switch {
	case errors.Is(err, application.ErrNoAdminAvailable):
		return e.finish(ctx, logger, principal, f,
			fmt.Sprintf("Ticket %s stays open and the IT team will follow up.", ticketID), OutcomeEscalated)
	case err != nil:
		return Reply{}, err
	}
	return e.finish(ctx, logger, principal, f,
		fmt.Sprintf("I've escalated ticket %s to %s, who will contact you.", ticket.ID, ticket.AssignedAdmin), OutcomeEscalated)
}
