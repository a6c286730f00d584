package dialog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/relayhub/plugin/agents"
	serrors "github.com/hrygo/relayhub/internal/errors"
	"github.com/hrygo/relayhub/store"
)

// Aggregator consolidates a session's accumulated logs at completion time and
// delivers the result to the callback consumer.
type Aggregator struct {
	store   *store.Store
	gateway *agents.Client
	logger  *slog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(st *store.Store, gateway *agents.Client, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: st, gateway: gateway, logger: logger}
}

// Complete runs the completion sequence: summarizer pass, feedback readback,
// concurrent log reads, callback delivery, then teardown of the session keys.
// Teardown runs only after aggregation succeeds and is never retried; a
// partial teardown surfaces as AmbiguousTeardown and leaves the session in a
// state the caller must re-query to resolve. Callers are expected to
// serialize Complete per session.
func (a *Aggregator) Complete(ctx context.Context, sessionID, clientID string) (*AggregatedResult, error) {
	if err := a.gateway.Summarize(ctx, sessionID); err != nil {
		return nil, coordErr(err, "summarizer pass failed")
	}

	// The summarizer persists under the feedback key before returning;
	// absence here is an error, not a retry condition.
	feedback, err := a.store.LastFeedback(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var (
		history   []store.HistoryEntry
		knowledge []store.KnowledgeEntry
		answers   []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = a.store.History(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		knowledge, err = a.store.Knowledge(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		answers, err = a.store.Answers(gctx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, serrors.Newf(serrors.KindSessionNotFound, "no history for session %s", sessionID)
	}

	result := &AggregatedResult{
		SessionID: sessionID,
		History:   &history[len(history)-1],
		Feedback:  feedback,
	}
	if len(knowledge) > 0 {
		result.Knowledge = &knowledge[len(knowledge)-1]
	}
	if len(answers) > 0 {
		result.Answer = answers[len(answers)-1]
	}

	if err := a.gateway.Callback(ctx, clientID, a.recommendation(result)); err != nil {
		return nil, coordErr(err, "callback delivery failed")
	}

	if err := a.store.DeleteSession(ctx, sessionID); err != nil {
		// Fatal for this session: some keys may be gone while others
		// remain. No automatic recovery is defined.
		a.logger.Error("session teardown partially applied",
			"session_id", sessionID, "error", err)
		return nil, serrors.Wrap(serrors.KindAmbiguousTeardown, "session teardown failed", err)
	}

	a.logger.Info("session completed", "session_id", sessionID, "client_id", clientID)
	return result, nil
}

func (a *Aggregator) recommendation(result *AggregatedResult) *agents.Recommendation {
	rec := &agents.Recommendation{Answer: result.Answer}
	if result.History != nil {
		rec.Intent = result.History.Intent
		rec.Emotion = result.History.Emotion
	}
	if result.Knowledge != nil {
		rec.Knowledge = &result.Knowledge.Answer
		rec.Source = result.Knowledge.Source
	}
	if result.Feedback != nil {
		rec.Summary = result.Feedback.Summary
		rec.QualityReview = result.Feedback.QualityReview
	}
	return rec
}
