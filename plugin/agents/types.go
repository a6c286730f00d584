package agents

import (
	"fmt"

	serrors "github.com/hrygo/relayhub/internal/errors"
)

// Kind identifies a downstream agent behind the gateway.
type Kind string

const (
	AgentClassifier Kind = "classifier"
	AgentRetrieval  Kind = "retrieval"
	AgentSuggestion Kind = "suggestion"
	AgentSummarizer Kind = "summarizer"
	AgentCallback   Kind = "callback"
)

// Reason categorizes a gateway failure.
type Reason string

const (
	// ReasonUnreachable covers connection failures and timeouts.
	ReasonUnreachable Reason = "unreachable"
	// ReasonBadStatus covers non-2xx responses.
	ReasonBadStatus Reason = "bad_status"
	// ReasonMalformedResponse covers bodies that do not parse as the expected schema.
	ReasonMalformedResponse Reason = "malformed_response"
)

// Error is the gateway's error type. The gateway performs a single attempt
// per call; retry policy belongs to callers, and none is applied anywhere in
// this service.
type Error struct {
	Agent  Kind
	Reason Reason
	Status int
	Body   string
	Cause  error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonBadStatus:
		return fmt.Sprintf("%s agent returned status %d: %s", e.Agent, e.Status, e.Body)
	case ReasonMalformedResponse:
		return fmt.Sprintf("%s agent returned malformed response: %v", e.Agent, e.Cause)
	default:
		return fmt.Sprintf("%s agent unreachable: %v", e.Agent, e.Cause)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CoordKind maps the gateway failure onto the service error taxonomy.
func (e *Error) CoordKind() serrors.Kind {
	if e.Reason == ReasonMalformedResponse {
		return serrors.KindAgentBadResponse
	}
	return serrors.KindAgentUnavailable
}

// ClassifyResult is the classifier's labeling of the latest user message.
type ClassifyResult struct {
	Intent  *string `json:"intent"`
	Emotion *string `json:"emotion"`
}

// RetrieveResult is one knowledge-base hit from the retrieval agent.
type RetrieveResult struct {
	Answer string  `json:"answer"`
	Source *string `json:"source,omitempty"`
}

// SuggestInput carries everything the suggestion agent consumes. Retrieved is
// the retrieval result of the same dispatch, passed directly rather than read
// back from the store.
type SuggestInput struct {
	SessionID string          `json:"session_id"`
	Message   string          `json:"message"`
	Intent    *string         `json:"intent"`
	Emotion   *string         `json:"emotion"`
	Retrieved *RetrieveResult `json:"retrieved,omitempty"`
}

// SuggestResult is the suggestion agent's reply.
type SuggestResult struct {
	Suggestion string `json:"suggestion"`
}

// Recommendation is the consolidated payload delivered to the callback
// consumer at session completion.
type Recommendation struct {
	Intent        *string        `json:"intent"`
	Emotion       *string        `json:"emotion"`
	Knowledge     *string        `json:"knowledge"`
	Source        *string        `json:"source"`
	Answer        string         `json:"answer"`
	Summary       map[string]any `json:"summary,omitempty"`
	QualityReview map[string]any `json:"quality_review,omitempty"`
}
