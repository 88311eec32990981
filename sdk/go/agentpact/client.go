// Package agentpact provides a small HTTP client for the agentpactd REST
// API. It carries no chain dependencies so integrators can drive the
// coordination lifecycle from any Go program.
package agentpact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the agentpactd REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient instantiates a client for the agentpactd API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// ProposeRequest is the payload for creating a new coordination intent.
// Addresses and hashes are hex strings; value is a base-10 integer string.
type ProposeRequest struct {
	Participants     []string `json:"participants"`
	TypeLabel        string   `json:"type_label,omitempty"`
	TypeHash         string   `json:"type_hash,omitempty"`
	Value            string   `json:"value,omitempty"`
	TTLSeconds       int64    `json:"ttl_seconds,omitempty"`
	Expiry           uint64   `json:"expiry,omitempty"`
	PayloadVersion   string   `json:"payload_version,omitempty"`
	CoordinationData string   `json:"coordination_data,omitempty"`
	ConditionsHash   string   `json:"conditions_hash,omitempty"`
	Metadata         string   `json:"metadata,omitempty"`
}

// Intent mirrors the recorded intent fields.
type Intent struct {
	PayloadHash       string      `json:"payload_hash"`
	Expiry            uint64      `json:"expiry"`
	Nonce             uint64      `json:"nonce"`
	AgentID           string      `json:"agent_id"`
	CoordinationType  string      `json:"coordination_type"`
	CoordinationValue json.Number `json:"coordination_value"`
	Participants      []string    `json:"participants"`
}

// Payload mirrors the opaque coordination payload.
type Payload struct {
	Version          string `json:"version"`
	CoordinationType string `json:"coordination_type"`
	CoordinationData []byte `json:"coordination_data"`
	ConditionsHash   string `json:"conditions_hash"`
	Timestamp        int64  `json:"timestamp"`
	Metadata         []byte `json:"metadata,omitempty"`
}

// IntentRecord is the server-side view of a recorded intent.
type IntentRecord struct {
	IntentHash string  `json:"intent_hash"`
	Intent     Intent  `json:"intent"`
	Payload    Payload `json:"payload"`
	Signature  []byte  `json:"signature,omitempty"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
}

// Attestation mirrors a signed acceptance.
type Attestation struct {
	IntentHash     string `json:"intent_hash"`
	Participant    string `json:"participant"`
	Nonce          uint64 `json:"nonce"`
	Expiry         uint64 `json:"expiry"`
	ConditionsHash string `json:"conditions_hash"`
	Signature      []byte `json:"signature,omitempty"`
}

// StatusView is the lifecycle view reported by the server.
type StatusView struct {
	Status       string   `json:"status"`
	Proposer     string   `json:"proposer"`
	Participants []string `json:"participants"`
	AcceptedBy   []string `json:"accepted_by"`
	Expiry       uint64   `json:"expiry"`
}

// AcceptRequest is the payload for accepting an intent.
type AcceptRequest struct {
	TTLSeconds     int64  `json:"ttl_seconds,omitempty"`
	Expiry         uint64 `json:"expiry,omitempty"`
	ConditionsHash string `json:"conditions_hash,omitempty"`
}

// TxResult carries the hash of a submitted transaction.
type TxResult struct {
	TxHash string `json:"tx_hash"`
}

// PolicyAction is one allowlist entry. Selector takes effect only when
// Signature is empty.
type PolicyAction struct {
	Target    string `json:"target"`
	Selector  string `json:"selector,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// PolicyRequest is the payload for registering an execution policy.
type PolicyRequest struct {
	Agent         string         `json:"agent"`
	SpendingLimit string         `json:"spending_limit,omitempty"`
	WindowStart   uint64         `json:"window_start"`
	WindowEnd     uint64         `json:"window_end"`
	MaxCalls      uint64         `json:"max_calls"`
	Actions       []PolicyAction `json:"actions"`
}

// PolicyRegistration is the server response after a policy registration.
type PolicyRegistration struct {
	PolicyID   string `json:"policy_id"`
	TxHash     string `json:"tx_hash"`
	BoundsRoot string `json:"bounds_root"`
}

// PolicyExecuteRequest is the payload for a bounded call.
type PolicyExecuteRequest struct {
	Target    string `json:"target"`
	Selector  string `json:"selector,omitempty"`
	Signature string `json:"signature,omitempty"`
	CallArgs  string `json:"call_args,omitempty"`
	Value     string `json:"value,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentpact api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentpact api error (%d): %s", e.StatusCode, e.Message)
}

// Propose submits a new coordination intent.
func (c *Client) Propose(ctx context.Context, req ProposeRequest) (IntentRecord, error) {
	var rec IntentRecord
	if err := c.post(ctx, "/api/v1/intents", req, &rec); err != nil {
		return IntentRecord{}, err
	}
	return rec, nil
}

// ListIntents fetches the most recent recorded intents.
func (c *Client) ListIntents(ctx context.Context, limit int) ([]IntentRecord, error) {
	endpoint := "/api/v1/intents"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var records []IntentRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetIntent fetches a recorded intent by hash.
func (c *Client) GetIntent(ctx context.Context, intentHash string) (IntentRecord, error) {
	var rec IntentRecord
	if err := c.get(ctx, "/api/v1/intents/"+url.PathEscape(intentHash), &rec); err != nil {
		return IntentRecord{}, err
	}
	return rec, nil
}

// Status fetches the current lifecycle view of an intent.
func (c *Client) Status(ctx context.Context, intentHash string) (StatusView, error) {
	var st StatusView
	if err := c.get(ctx, "/api/v1/intents/"+url.PathEscape(intentHash)+"/status", &st); err != nil {
		return StatusView{}, err
	}
	return st, nil
}

// Accept signs and submits an acceptance for the intent on behalf of the
// daemon's configured agent.
func (c *Client) Accept(ctx context.Context, intentHash string, req AcceptRequest) (Attestation, error) {
	var att Attestation
	if err := c.post(ctx, "/api/v1/intents/"+url.PathEscape(intentHash)+"/acceptances", req, &att); err != nil {
		return Attestation{}, err
	}
	return att, nil
}

// AwaitReady blocks server-side until the intent becomes ready, reaches a
// terminal state, or the supplied timeout elapses.
func (c *Client) AwaitReady(ctx context.Context, intentHash string, interval, timeout time.Duration) (StatusView, error) {
	body := map[string]any{
		"interval_seconds": interval.Seconds(),
		"timeout_seconds":  timeout.Seconds(),
	}
	var st StatusView
	if err := c.post(ctx, "/api/v1/intents/"+url.PathEscape(intentHash)+"/await", body, &st); err != nil {
		return StatusView{}, err
	}
	return st, nil
}

// Execute triggers on-chain execution of a ready intent.
func (c *Client) Execute(ctx context.Context, intentHash, executionData string) (TxResult, error) {
	body := map[string]string{"execution_data": executionData}
	var result TxResult
	if err := c.post(ctx, "/api/v1/intents/"+url.PathEscape(intentHash)+"/execute", body, &result); err != nil {
		return TxResult{}, err
	}
	return result, nil
}

// Cancel requests cancellation of an intent.
func (c *Client) Cancel(ctx context.Context, intentHash, reason string) (TxResult, error) {
	body := map[string]string{"reason": reason}
	var result TxResult
	if err := c.post(ctx, "/api/v1/intents/"+url.PathEscape(intentHash)+"/cancel", body, &result); err != nil {
		return TxResult{}, err
	}
	return result, nil
}

// RegisterPolicy registers a bounded execution policy.
func (c *Client) RegisterPolicy(ctx context.Context, req PolicyRequest) (PolicyRegistration, error) {
	var reg PolicyRegistration
	if err := c.post(ctx, "/api/v1/policies", req, &reg); err != nil {
		return PolicyRegistration{}, err
	}
	return reg, nil
}

// ExecutePolicy performs a bounded call under a registered policy.
func (c *Client) ExecutePolicy(ctx context.Context, policyID string, req PolicyExecuteRequest) (TxResult, error) {
	var result TxResult
	if err := c.post(ctx, "/api/v1/policies/"+url.PathEscape(policyID)+"/execute", req, &result); err != nil {
		return TxResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	endpointPath, query, _ := strings.Cut(endpoint, "?")
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpointPath), RawQuery: query}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
