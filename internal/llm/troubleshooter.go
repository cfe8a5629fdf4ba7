package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/intellidesk/internal/application"
)

// DefaultTroubleshootModel is the model used for IT guidance.
const DefaultTroubleshootModel = "ticket-model"

const troubleshootPrompt = `You are an IT support assistant.

Suggest short, concrete troubleshooting steps a non-technical employee can follow.
Return ONLY valid JSON matching this schema:
{"steps": [string, minItems 1], "resolved": boolean}

Set "resolved" to true only when the issue description says it is already fixed.

Issue:
%s
`

// Troubleshooter implements application.Troubleshooter on a model.
type Troubleshooter struct {
	client *Client
	model  string
}

// NewTroubleshooter builds a Troubleshooter.
func NewTroubleshooter(client *Client, model string) *Troubleshooter {
	if model == "" {
		model = DefaultTroubleshootModel
	}
	return &Troubleshooter{client: client, model: model}
}

// Troubleshoot asks for a new round of steps. Steps already tried are listed so
// the model does not repeat them.
func (t *Troubleshooter) Troubleshoot(ctx context.Context, issue string, previous []string) (application.TroubleshootResult, error) {
	if t.client == nil {
		return application.TroubleshootResult{}, fmt.Errorf("llm: troubleshooter has no client")
	}

	var b strings.Builder
	fmt.Fprintf(&b, troubleshootPrompt, strings.TrimSpace(issue))
	if len(previous) > 0 {
		b.WriteString("\nAlready tried without success:\n")
		for _, step := range previous {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}

	raw, err := t.client.Generate(ctx, t.model, b.String())
	if err != nil {
		return application.TroubleshootResult{}, err
	}
	return ParseTroubleshoot(raw)
}

// ParseTroubleshoot decodes a {"steps": [...], "resolved": bool} reply.
func ParseTroubleshoot(raw string) (application.TroubleshootResult, error) {
	var wire struct {
		Steps    []json.RawMessage `json:"steps"`
		Resolved bool              `json:"resolved"`
	}
	if err := decodeObject(raw, &wire); err != nil {
		return application.TroubleshootResult{}, err
	}

	steps := make([]string, 0, len(wire.Steps))
	for _, rawStep := range wire.Steps {
		var v any
		if err := json.Unmarshal(rawStep, &v); err != nil {
			continue
		}
		if s := stringify(v); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return application.TroubleshootResult{}, fmt.Errorf("%w: no troubleshooting steps", ErrMalformedOutput)
	}
	return application.TroubleshootResult{Steps: steps, Resolved: wire.Resolved}, nil
}

var _ application.Troubleshooter = (*Troubleshooter)(nil)
