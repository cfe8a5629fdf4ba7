package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/example/intellidesk/internal/conversation"
)

// DefaultExtractorModel is the model used for slot filling.
const DefaultExtractorModel = "portal-model"

// Extractor asks a model, whose system prompt lives in the model definition,
// to fill the fields of a flow from its history.
type Extractor struct {
	client *Client
	model  string
}

// NewExtractor builds an Extractor.
func NewExtractor(client *Client, model string) *Extractor {
	if model == "" {
		model = DefaultExtractorModel
	}
	return &Extractor{client: client, model: model}
}

// ExtractionPrompt renders the request the way the extraction model expects:
// intent and reference date first, then known fields, then ROLE: text lines.
func ExtractionPrompt(req conversation.ExtractionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "intent: %q\n", string(req.Kind))
	fmt.Fprintf(&b, "current_date: %q\n", req.ReferenceDate)
	if len(req.Data) > 0 {
		keys := make([]string, 0, len(req.Data))
		for k := range req.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "known %s: %q\n", k, req.Data[k])
		}
	}
	for _, turn := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(turn.Speaker)), turn.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Extract implements conversation.Extractor.
func (e *Extractor) Extract(ctx context.Context, req conversation.ExtractionRequest) (conversation.Extraction, error) {
	if e.client == nil {
		return conversation.Extraction{}, fmt.Errorf("llm: extractor has no client")
	}
	raw, err := e.client.Generate(ctx, e.model, ExtractionPrompt(req))
	if err != nil {
		return conversation.Extraction{}, err
	}
	return ParseExtraction(raw)
}

// ParseExtraction decodes {"status":"incomplete","question":...} or
// {"status":"complete","data":{...}}. A complete reply without a data object
// contributes its other top-level fields.
func ParseExtraction(raw string) (conversation.Extraction, error) {
	var wire map[string]json.RawMessage
	if err := decodeObject(raw, &wire); err != nil {
		return conversation.Extraction{}, err
	}

	var status string
	if s, ok := wire["status"]; ok {
		_ = json.Unmarshal(s, &status)
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "incomplete":
		var question string
		_ = json.Unmarshal(wire["question"], &question)
		question = strings.TrimSpace(question)
		if question == "" {
			return conversation.Extraction{}, fmt.Errorf("%w: incomplete without question", ErrMalformedOutput)
		}
		return conversation.Extraction{Question: question}, nil
	case "complete":
	default:
		return conversation.Extraction{}, fmt.Errorf("%w: unknown status %q", ErrMalformedOutput, status)
	}

	fields := map[string]any{}
	if d, ok := wire["data"]; ok {
		if err := json.Unmarshal(d, &fields); err != nil {
			return conversation.Extraction{}, fmt.Errorf("%w: data is not an object", ErrMalformedOutput)
		}
	} else {
		for k, v := range wire {
			if k == "status" {
				continue
			}
			var decoded any
			if json.Unmarshal(v, &decoded) == nil {
				fields[k] = decoded
			}
		}
	}

	data := make(map[string]string, len(fields))
	for k, v := range fields {
		if s := stringify(v); s != "" {
			data[k] = s
		}
	}
	if len(data) == 0 {
		return conversation.Extraction{}, fmt.Errorf("%w: complete without data", ErrMalformedOutput)
	}
	return conversation.Extraction{Complete: true, Data: data}, nil
}

var _ conversation.Extractor = (*Extractor)(nil)

