// Package llm talks to an Ollama-compatible model server and implements the
// classifier, extractor and troubleshooter collaborators on top of it.
//
// Model output is treated as untrusted text: it is located inside any prose or
// code fences, relaxed JSON (comments, trailing commas) is accepted, and
// anything that still fails to decode is reported as ErrMalformedOutput.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultBaseURL is the local Ollama endpoint.
const DefaultBaseURL = "http://localhost:11434"

// ErrMalformedOutput is returned when a model reply cannot be decoded.
var ErrMalformedOutput = errors.New("llm: malformed model output")

// ProviderError is a non-200 reply from the model server.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: server returned %d: %s", e.StatusCode, e.Message)
}

// Client issues non-streaming generate calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client. A nil httpClient uses http.DefaultClient; callers
// bound latency through the request context.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message,omitempty"`
}

// Generate sends prompt to model and returns the raw completion text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("llm: marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var wire struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(msg, &wire) == nil && wire.Error != "" {
			return "", &ProviderError{StatusCode: resp.StatusCode, Message: wire.Error}
		}
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decoding response: %w", err)
	}
	if out.Message != nil && out.Message.Content != "" {
		return out.Message.Content, nil
	}
	return out.Response, nil
}
