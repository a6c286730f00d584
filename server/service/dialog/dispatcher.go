package dialog

import (
	"context"
	"log/slog"

	"github.com/hrygo/relayhub/plugin/agents"
	serrors "github.com/hrygo/relayhub/internal/errors"
	"github.com/hrygo/relayhub/store"
)

// Dispatcher implements change-detection dispatch: classify the latest user
// message, compare its intent with the previous one, and run the expensive
// retrieval/suggestion chain only when the intent moved.
type Dispatcher struct {
	store   *store.Store
	gateway *agents.Client
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(st *store.Store, gateway *agents.Client, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: st, gateway: gateway, logger: logger}
}

// DecideAndDispatch classifies the session's newest history entry, patches
// the labels into it in place, decides whether the downstream agents must
// run, and runs them.
//
// Classification precedes the comparison unconditionally and its in-place
// update is never rolled back: a failure later in the chain keeps the labels,
// so the next comparison works from real data even though this dispatch's
// retrieval or suggestion never landed.
func (d *Dispatcher) DecideAndDispatch(ctx context.Context, sessionID string) (*DispatchOutcome, error) {
	labels, err := d.gateway.Classify(ctx, sessionID)
	if err != nil {
		return nil, coordErr(err, "classification failed")
	}

	entries, err := d.store.LastHistory(ctx, sessionID, 2)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, serrors.Newf(serrors.KindSessionNotFound, "no history for session %s", sessionID)
	}

	last := entries[len(entries)-1]
	last.Intent = labels.Intent
	last.Emotion = labels.Emotion
	if err := d.store.ReplaceLastHistory(ctx, sessionID, last); err != nil {
		return nil, err
	}

	outcome := decide(entries, labels)
	if !outcome.Dispatched {
		d.logger.Info("intent stable, skipping dispatch",
			"session_id", sessionID, "intent", strOrNil(labels.Intent))
		return outcome, nil
	}

	d.logger.Info("dispatching downstream agents",
		"session_id", sessionID,
		"reason", string(outcome.Reason),
		"intent", strOrNil(labels.Intent),
		"previous_intent", strOrNil(outcome.PreviousIntent))

	retrieved, err := d.gateway.Retrieve(ctx, sessionID, labels.Intent)
	if err != nil {
		return outcome, coordErr(err, "retrieval failed")
	}
	if err := d.store.AppendKnowledge(ctx, sessionID, store.KnowledgeEntry{
		Answer: retrieved.Answer,
		Source: retrieved.Source,
	}); err != nil {
		return outcome, err
	}

	// The retrieval result travels with the suggestion request instead of
	// being read back from the store, so the suggestion never races a
	// knowledge append that has not landed yet.
	if _, err := d.gateway.Suggest(ctx, &agents.SuggestInput{
		SessionID: sessionID,
		Message:   last.Message,
		Intent:    labels.Intent,
		Emotion:   labels.Emotion,
		Retrieved: retrieved,
	}); err != nil {
		return outcome, coordErr(err, "suggestion failed")
	}

	return outcome, nil
}

// Decide inspects the last two history entries without side effects. Exposed
// for the read-only intent inspection route.
func (d *Dispatcher) Decide(ctx context.Context, sessionID string) (*IntentStatus, error) {
	entries, err := d.store.LastHistory(ctx, sessionID, 2)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, serrors.Newf(serrors.KindSessionNotFound, "no history for session %s", sessionID)
	}
	last := entries[len(entries)-1]
	return &IntentStatus{
		Entries: entries,
		Outcome: *decide(entries, &agents.ClassifyResult{Intent: last.Intent, Emotion: last.Emotion}),
	}, nil
}

// decide applies the dispatch rule: fewer than two entries always dispatches;
// otherwise intents are compared case-sensitively, nil equal only to nil.
func decide(entries []store.HistoryEntry, labels *agents.ClassifyResult) *DispatchOutcome {
	outcome := &DispatchOutcome{Intent: labels.Intent, Emotion: labels.Emotion}
	if len(entries) < 2 {
		outcome.Dispatched = true
		outcome.Reason = ReasonColdStart
		return outcome
	}

	previous := entries[len(entries)-2].Intent
	outcome.PreviousIntent = previous
	if intentEqual(previous, labels.Intent) {
		outcome.Reason = ReasonIntentStable
		return outcome
	}
	outcome.Dispatched = true
	outcome.Reason = ReasonIntentChanged
	return outcome
}

func intentEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// coordErr lifts a gateway error into the service taxonomy.
func coordErr(err error, message string) error {
	if agentErr, ok := err.(*agents.Error); ok {
		return serrors.Wrap(agentErr.CoordKind(), message, err)
	}
	return serrors.Wrap(serrors.KindAgentUnavailable, message, err)
}

func strOrNil(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
