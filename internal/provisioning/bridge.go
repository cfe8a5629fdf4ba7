// Package provisioning holds the outbound collaborators invoked after a record
// is committed: the video-bridge client and the notifiers.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/example/intellidesk/internal/application"
)

// DefaultBridgeURL is the Webex meetings endpoint.
const DefaultBridgeURL = "https://webexapis.com/v1/meetings"

// startLayout is the zone-less ISO form the bridge expects.
const startLayout = "2006-01-02T15:04:05"

// ErrNoToken is returned when an account has no configured bearer token.
var ErrNoToken = errors.New("provisioning: no token configured for bridge account")

// BridgeError is a non-2xx reply from the bridge API.
type BridgeError struct {
	StatusCode int
	Body       string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("provisioning: bridge returned %d: %s", e.StatusCode, e.Body)
}

// WebexClient schedules sessions on a Webex-style REST API, authenticating
// each account with its own bearer token.
type WebexClient struct {
	httpClient *http.Client
	url        string
	tokens     map[string]string
}

// NewWebexClient builds a client. tokens maps bridge account names (e.g.
// "WebEx-1") to bearer tokens.
func NewWebexClient(httpClient *http.Client, url string, tokens map[string]string) *WebexClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(url) == "" {
		url = DefaultBridgeURL
	}
	normalized := make(map[string]string, len(tokens))
	for account, token := range tokens {
		normalized[AccountKey(account)] = token
	}
	return &WebexClient{httpClient: httpClient, url: url, tokens: normalized}
}

// AccountKey folds an account name to the form used in BRIDGE_TOKEN_<ACCOUNT>
// variables: "WebEx-1" becomes "WEBEX_1".
func AccountKey(account string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(account)), "-", "_")
}

type createMeetingRequest struct {
	Title       string `json:"title"`
	Start       string `json:"start"`
	Duration    int    `json:"duration"`
	MeetingType string `json:"meetingType"`
}

type createMeetingResponse struct {
	ID      string `json:"id"`
	JoinURL string `json:"joinWebexMeetingUrl"`
}

// Provision creates a session for req on req.Account.
func (c *WebexClient) Provision(ctx context.Context, req application.BridgeRequest) (application.BridgeSession, error) {
	token := c.tokens[AccountKey(req.Account)]
	if token == "" {
		return application.BridgeSession{}, fmt.Errorf("%w: %q", ErrNoToken, req.Account)
	}

	body, err := json.Marshal(createMeetingRequest{
		Title:       req.Title,
		Start:       req.Start.Format(startLayout),
		Duration:    int(req.Duration.Minutes()),
		MeetingType: "meetingCenter",
	})
	if err != nil {
		return application.BridgeSession{}, fmt.Errorf("provisioning: marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return application.BridgeSession{}, fmt.Errorf("provisioning: creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return application.BridgeSession{}, fmt.Errorf("provisioning: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return application.BridgeSession{}, &BridgeError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out createMeetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return application.BridgeSession{}, fmt.Errorf("provisioning: decoding response: %w", err)
	}
	if out.ID == "" || out.JoinURL == "" {
		return application.BridgeSession{}, fmt.Errorf("provisioning: response missing id or join link")
	}
	return application.BridgeSession{ID: out.ID, JoinURL: out.JoinURL}, nil
}

var _ application.BridgeProvisioner = (*WebexClient)(nil)
