package dialog

import (
	"time"

	"github.com/hrygo/relayhub/store"
)

// DispatchReason explains why a dispatch decision came out the way it did.
type DispatchReason string

const (
	// ReasonColdStart means the session had fewer than two history entries.
	ReasonColdStart DispatchReason = "cold_start"
	// ReasonIntentChanged means the intent differs from the previous message.
	ReasonIntentChanged DispatchReason = "intent_changed"
	// ReasonIntentStable means the intent matches the previous message.
	ReasonIntentStable DispatchReason = "intent_stable"
)

// DispatchOutcome reports what a change-detection dispatch did.
type DispatchOutcome struct {
	Dispatched     bool           `json:"dispatched"`
	Reason         DispatchReason `json:"reason"`
	Intent         *string        `json:"intent"`
	PreviousIntent *string        `json:"previous_intent,omitempty"`
	Emotion        *string        `json:"emotion,omitempty"`
}

// AggregatedResult is the consolidated payload built at session completion.
// It is ephemeral: produced once, delivered to the callback consumer, and
// returned to the completion caller.
type AggregatedResult struct {
	SessionID string                `json:"session_id"`
	History   *store.HistoryEntry   `json:"history,omitempty"`
	Knowledge *store.KnowledgeEntry `json:"knowledge,omitempty"`
	Answer    string                `json:"answer"`
	Feedback  *store.FeedbackEntry  `json:"feedback"`
}

// DispatchFailure is published on the service failure channel when a
// fire-and-forget dispatch fails after the ingestion caller has already been
// acknowledged.
type DispatchFailure struct {
	SessionID string
	Role      string
	Err       error
	At        time.Time
}

// IntentStatus is the read-only inspection of the last two history entries,
// exposed for operators debugging dispatch behavior.
type IntentStatus struct {
	Entries []store.HistoryEntry `json:"entries"`
	Outcome DispatchOutcome      `json:"outcome"`
}
