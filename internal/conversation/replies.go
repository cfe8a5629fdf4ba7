package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/intellidesk/internal/flow"
	"github.com/example/intellidesk/internal/scheduler"
)

// Fixed replies.
const (
	RetryQuestion   = "Please repeat that clearly."
	GreetingText    = "Hi! I can book a meeting room, request equipment or open an IT ticket. What do you need?"
	FallbackText    = "Sorry, I didn't catch that. You can ask me to book a meeting room, request equipment or report an IT problem."
	ExpiredText     = "That conversation expired. Tell me again what you need and we'll start fresh."
	ConfirmReminder = "Please reply yes to confirm or no to start over."
	TicketReminder  = "Did those steps fix it? Please reply yes or no."
)

func openingQuestion(kind flow.Kind) string {
	switch kind {
	case flow.KindMeeting:
		return "What meeting would you like to book? Tell me the title, date, start time, duration, number of participants and whether it is in person or remote."
	case flow.KindEquipment:
		return "Which item do you need, and by what date will you return it?"
	case flow.KindTicket:
		return "Please describe the problem you are seeing."
	}
	return ""
}

var requiredFields = map[flow.Kind][]string{
	flow.KindMeeting:   {"title", "date", "start_time", "duration", "participants", "medium"},
	flow.KindEquipment: {"item", "return_by"},
}

var fieldLabels = map[string]string{
	"start_time":   "the start time",
	"participants": "the number of participants",
	"medium":       "whether it is in person or remote",
	"return_by":    "the return date",
	"title":        "a title",
	"date":         "the date",
	"duration":     "the duration",
	"item":         "the item",
}

func missingFields(kind flow.Kind, data map[string]string) []string {
	var missing []string
	for _, field := range requiredFields[kind] {
		if strings.TrimSpace(data[field]) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

func joinFields(fields []string) string {
	labels := make([]string, len(fields))
	for i, f := range fields {
		labels[i] = fieldLabels[f]
		if labels[i] == "" {
			labels[i] = f
		}
	}
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
}

func mediumLabel(raw string) string {
	if m, ok := scheduler.ParseMedium(raw); ok && m == scheduler.MediumRemote {
		return "remote with a video bridge"
	}
	return "in person"
}

func confirmationPrompt(f flow.Flow) string {
	d := f.Data
	switch f.Kind {
	case flow.KindMeeting:
		return fmt.Sprintf("Please confirm: %q on %s at %s for %s, %s participants, %s. Shall I book it? (yes/no)",
			d["title"], d["date"], d["start_time"], d["duration"], d["participants"], mediumLabel(d["medium"]))
	case flow.KindEquipment:
		msg := fmt.Sprintf("Please confirm: %s, returned by %s", d["item"], d["return_by"])
		if id := strings.TrimSpace(d["meeting_id"]); id != "" {
			msg += ", for meeting " + id
		}
		return msg + ". Shall I place the request? (yes/no)"
	}
	return ConfirmReminder
}

type answer int

const (
	answerUnknown answer = iota
	answerYes
	answerNo
)

var (
	negativeWords = map[string]struct{}{
		"no": {}, "n": {}, "nope": {}, "nah": {}, "not": {}, "still": {}, "cancel": {}, "wrong": {},
		"didn't": {}, "didnt": {}, "doesn't": {}, "doesnt": {}, "don't": {}, "dont": {},
		"isn't": {}, "isnt": {}, "never": {}, "broken": {}, "failed": {},
	}
	affirmativeWords = map[string]struct{}{
		"yes": {}, "y": {}, "yeah": {}, "yep": {}, "sure": {}, "ok": {}, "okay": {}, "confirm": {},
		"confirmed": {}, "correct": {}, "fixed": {}, "works": {}, "working": {}, "solved": {}, "resolved": {},
	}
	// answerPhrases are read before single words, so "no problem" is not a no.
	answerPhrases = []struct {
		words   []string
		verdict answer
	}{
		{[]string{"no", "problem"}, answerYes},
		{[]string{"no", "worries"}, answerYes},
		{[]string{"not", "a", "problem"}, answerYes},
		{[]string{"not", "bad"}, answerYes},
		{[]string{"why", "not"}, answerYes},
		{[]string{"go", "ahead"}, answerYes},
	}
)

// parseAnswer reads a yes/no reply. The first decisive word or phrase wins,
// so "yes, no problem" is a yes and "no, still not working" is a no.
func parseAnswer(text string) answer {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '\''
	})
	for i, w := range words {
		for _, p := range answerPhrases {
			if hasWords(words[i:], p.words) {
				return p.verdict
			}
		}
		if _, ok := negativeWords[w]; ok {
			return answerNo
		}
		if _, ok := affirmativeWords[w]; ok {
			return answerYes
		}
	}
	return answerUnknown
}

func hasWords(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if words[i] != p {
			return false
		}
	}
	return true
}

var (
	timePattern    = regexp.MustCompile(`(?:^|[^\d])([01]?\d|2[0-3]):([0-5]\d)(?:[^\d]|$)`)
	dotTimePattern = regexp.MustCompile(`(?:^|[^\d.])([01]?\d|2[0-3])\.([0-5]\d)(?:[^\d.]|$)`)
	datePattern    = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})/(\d{1,2})(?:[^\d]|$)`)
)

// matchCandidate finds the candidate whose start time appears in text. A
// DD/MM date in text must match too.
func matchCandidate(text string, candidates []flow.Candidate) (flow.Candidate, bool) {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		m = dotTimePattern.FindStringSubmatch(text)
	}
	if m == nil {
		return flow.Candidate{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	clock := fmt.Sprintf("%02d:%s", hour, m[2])

	var date string
	if d := datePattern.FindStringSubmatch(text); d != nil {
		day, _ := strconv.Atoi(d[1])
		month, _ := strconv.Atoi(d[2])
		date = fmt.Sprintf("%02d/%02d", day, month)
	}
	for _, c := range candidates {
		if c.StartTime == clock && (date == "" || c.Date == date) {
			return c, true
		}
	}
	return flow.Candidate{}, false
}

func candidateLabels(candidates []flow.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Label()
	}
	return out
}

func slotPrompt(candidates []flow.Candidate) string {
	return "That time is already taken. Free start times: " + strings.Join(candidateLabels(candidates), ", ") +
		". Reply with the one you want, or no to start over."
}

func slotReminder(candidates []flow.Candidate) string {
	return "Please choose one of these start times: " + strings.Join(candidateLabels(candidates), ", ") + "."
}

// relative renders t against now, e.g. "20 minutes from now".
func relative(now, t time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func troubleshootingText(intro string, steps []string) string {
	var b strings.Builder
	b.WriteString(intro + "\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString(TicketReminder)
	return b.String()
}
