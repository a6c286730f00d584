// Package agents provides the gateway to the downstream analysis agents:
// intent/emotion classification, knowledge retrieval, suggestion generation
// and summarization, plus the outbound callback consumer. Each agent is an
// external request/response HTTP JSON service; the gateway normalizes their
// transport failures into a small taxonomy and never retries.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hrygo/relayhub/internal/profile"
)

// Config holds the gateway endpoints and per-agent timeouts.
type Config struct {
	ClassifierURL string
	RetrievalURL  string
	SuggestionURL string
	SummarizerURL string
	CallbackURL   string

	// Per-agent request timeouts. Summarization runs a full pipeline on the
	// agent side and gets the longest budget.
	ClassifierTimeout time.Duration
	RetrievalTimeout  time.Duration
	SuggestionTimeout time.Duration
	SummarizerTimeout time.Duration
	CallbackTimeout   time.Duration
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() *Config {
	return &Config{
		ClassifierTimeout: 5 * time.Second,
		RetrievalTimeout:  15 * time.Second,
		SuggestionTimeout: 15 * time.Second,
		SummarizerTimeout: 30 * time.Second,
		CallbackTimeout:   8 * time.Second,
	}
}

// ConfigFromProfile creates a gateway config from the runtime profile.
func ConfigFromProfile(p *profile.Profile) *Config {
	config := DefaultConfig()
	config.ClassifierURL = p.ClassifierURL
	config.RetrievalURL = p.RetrievalURL
	config.SuggestionURL = p.SuggestionURL
	config.SummarizerURL = p.SummarizerURL
	config.CallbackURL = p.CallbackURL
	return config
}

// Client is the agent gateway.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client. The shared http.Client carries no
// global timeout; each call derives its own deadline from the per-agent
// budget and the caller's context.
func NewClient(config *Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Classify asks the classifier to label the session's latest user message.
// The classifier reads the message from the shared store by session id.
func (c *Client) Classify(ctx context.Context, sessionID string) (*ClassifyResult, error) {
	payload := map[string]string{"session_id": sessionID}
	var result ClassifyResult
	if err := c.invoke(ctx, AgentClassifier, c.config.ClassifierURL+"/classify",
		c.config.ClassifierTimeout, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Retrieve asks the retrieval agent for a knowledge-base answer matching the
// session's current intent.
func (c *Client) Retrieve(ctx context.Context, sessionID string, intent *string) (*RetrieveResult, error) {
	payload := map[string]any{"session_id": sessionID, "intent": intent}
	var result RetrieveResult
	if err := c.invoke(ctx, AgentRetrieval, c.config.RetrievalURL+"/retrieve",
		c.config.RetrievalTimeout, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Suggest asks the suggestion agent for an operator recommendation.
func (c *Client) Suggest(ctx context.Context, input *SuggestInput) (*SuggestResult, error) {
	var result SuggestResult
	if err := c.invoke(ctx, AgentSuggestion, c.config.SuggestionURL+"/suggest",
		c.config.SuggestionTimeout, input, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Summarize triggers the summarizer's quality pass for the session. The
// summarizer persists its result under the session's feedback key; the caller
// reads it back from the store afterwards.
func (c *Client) Summarize(ctx context.Context, sessionID string) error {
	payload := map[string]string{"session_id": sessionID}
	return c.invoke(ctx, AgentSummarizer, c.config.SummarizerURL+"/summarize",
		c.config.SummarizerTimeout, payload, nil)
}

// NotifyOperatorMessage relays an operator message to the suggestion agent's
// notification endpoint. Operator messages never trigger classification or
// dispatch; the agent only uses them as conversational context.
func (c *Client) NotifyOperatorMessage(ctx context.Context, sessionID, message string) error {
	payload := map[string]string{"session_id": sessionID, "message": message}
	return c.invoke(ctx, AgentSuggestion, c.config.SuggestionURL+"/notify",
		c.config.SuggestionTimeout, payload, nil)
}

// Callback delivers the consolidated recommendation to the callback consumer,
// tagged with the client id for correlation.
func (c *Client) Callback(ctx context.Context, clientID string, rec *Recommendation) error {
	body, err := json.Marshal(map[string]*Recommendation{"recommendation": rec})
	if err != nil {
		return &Error{Agent: AgentCallback, Reason: ReasonMalformedResponse, Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CallbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return &Error{Agent: AgentCallback, Reason: ReasonUnreachable, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", clientID)

	return c.do(AgentCallback, req, nil)
}

// invoke performs a single-attempt POST of payload to url and, when out is
// non-nil, decodes the response body into it.
func (c *Client) invoke(ctx context.Context, agent Kind, url string, timeout time.Duration, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Agent: agent, Reason: ReasonMalformedResponse, Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Agent: agent, Reason: ReasonUnreachable, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(agent, req, out)
}

func (c *Client) do(agent Kind, req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Agent: agent, Reason: ReasonUnreachable, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{
			Agent:  agent,
			Reason: ReasonBadStatus,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(detail)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Agent: agent, Reason: ReasonMalformedResponse, Cause: err}
		}
	}

	c.logger.Debug("agent call completed",
		"agent", string(agent),
		"url", req.URL.String(),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
