package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// defaultTimeout bounds a single policy evaluation call.
const defaultTimeout = 5 * time.Second

// Logger is the minimal logging interface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Evaluator is the policy-decision boundary consumed by the execution
// engine. Implementations must be fail-closed: any condition that
// prevents a definitive verdict yields a reject, never a permit.
type Evaluator interface {
	Evaluate(ctx context.Context, env *envelope.ActionEnvelope) Decision
}

// Client evaluates envelopes against an external policy service over
// HTTP. When no service URL is configured it falls back to a local
// permit with consent and confirmation checks still applied.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a logger for evaluation outcomes.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient constructs a policy client. An empty baseURL enables
// local-only evaluation.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// evaluateRequest is the wire request to the policy service.
type evaluateRequest struct {
	Action           string                   `json:"action"`
	Context          *envelope.ActionEnvelope `json:"context"`
	ConsentReference string                   `json:"consent_reference,omitempty"`
}

// evaluateResponse is the wire response from the policy service.
type evaluateResponse struct {
	Permitted            bool               `json:"permitted"`
	Status               string             `json:"status"`
	Reason               string             `json:"reason"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	ConfirmationID       string             `json:"confirmation_id"`
	MinConfirmations     int                `json:"min_confirmations"`
	RewrittenIntent      *envelope.Intent   `json:"rewritten_intent"`
	RewrittenRiskLevel   envelope.RiskLevel `json:"rewritten_risk_level"`
}

// Evaluate produces a normalized decision for the envelope.
//
// High-risk envelopes without a consent reference are rejected before
// any outbound call is made. Transport failures, non-2xx responses, and
// malformed bodies all normalize to a reject with reason
// "policy_unavailable" — the pipeline never fails open.
func (c *Client) Evaluate(ctx context.Context, env *envelope.ActionEnvelope) Decision {
	// Absence of consent for a high-risk action is a definitive no,
	// regardless of what the policy service would say.
	if env.RiskLevel == envelope.RiskHigh && consentReference(env) == "" {
		c.logger.Info("policy: high-risk envelope without consent reference rejected",
			"action_id", env.ActionID)
		return Decision{Kind: DecisionReject, Reason: ReasonConsentRequired}
	}

	if c.baseURL == "" {
		return c.evaluateLocal(env)
	}

	resp, err := c.call(ctx, env)
	if err != nil {
		c.logger.Warn("policy: evaluation unavailable, failing closed",
			"action_id", env.ActionID, "error", err)
		return Decision{Kind: DecisionReject, Reason: ReasonPolicyUnavailable}
	}

	return normalize(resp)
}

// evaluateLocal handles the no-policy-service deployment: the risk gate
// has already run, so the envelope is permitted unless it asks for
// confirmations itself.
func (c *Client) evaluateLocal(env *envelope.ActionEnvelope) Decision {
	if env.Constraints != nil &&
		env.Constraints.RequiredConfirmations != nil &&
		*env.Constraints.RequiredConfirmations > 0 {
		return Decision{
			Kind:             DecisionRequireConfirmation,
			ConfirmationID:   uuid.New().String(),
			MinConfirmations: *env.Constraints.RequiredConfirmations,
		}
	}
	return Decision{Kind: DecisionPermit}
}

// call performs the outbound evaluate request.
func (c *Client) call(ctx context.Context, env *envelope.ActionEnvelope) (*evaluateResponse, error) {
	body, err := json.Marshal(evaluateRequest{
		Action:           env.Intent.Name,
		Context:          env,
		ConsentReference: consentReference(env),
	})
	if err != nil {
		return nil, fmt.Errorf("policy: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("policy: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("policy: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("policy: evaluation failed (HTTP %d)", resp.StatusCode)
	}

	var decoded evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("policy: decode response: %w", err)
	}

	return &decoded, nil
}

// normalize maps a wire response to a Decision.
func normalize(resp *evaluateResponse) Decision {
	if !resp.Permitted {
		reason := resp.Reason
		if reason == "" {
			reason = "policy rejected action"
		}
		return Decision{Kind: DecisionReject, Reason: reason}
	}

	if resp.RequiresConfirmation {
		id := resp.ConfirmationID
		if id == "" {
			id = uuid.New().String()
		}
		min := resp.MinConfirmations
		if min < 1 {
			min = 1
		}
		return Decision{
			Kind:             DecisionRequireConfirmation,
			ConfirmationID:   id,
			MinConfirmations: min,
		}
	}

	if resp.RewrittenIntent != nil || resp.RewrittenRiskLevel != "" {
		return Decision{
			Kind:               DecisionRewrite,
			RewrittenIntent:    resp.RewrittenIntent,
			RewrittenRiskLevel: resp.RewrittenRiskLevel,
		}
	}

	return Decision{Kind: DecisionPermit}
}

func consentReference(env *envelope.ActionEnvelope) string {
	if env.PolicyContext == nil {
		return ""
	}
	return env.PolicyContext.ConsentReference
}
