package dialog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/hrygo/relayhub/internal/errors"
	"github.com/hrygo/relayhub/store"
)

func TestDispatcher_ColdStart(t *testing.T) {
	ctx := context.Background()
	h := newAgentHarness(t)
	h.setIntent("billing")
	d := NewDispatcher(h.st, h.gateway(), nil)

	seedHistory(t, h.st, "s1", store.HistoryEntry{Role: store.RoleUser, Message: "hi, my bill looks wrong"})

	outcome, err := d.DecideAndDispatch(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, outcome.Dispatched)
	assert.Equal(t, ReasonColdStart, outcome.Reason)

	classify, retrieve, suggest := h.counts()
	assert.Equal(t, 1, classify)
	assert.Equal(t, 1, retrieve)
	assert.Equal(t, 1, suggest)

	// Classification patched the entry in place.
	history, err := h.st.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Intent)
	assert.Equal(t, "billing", *history[0].Intent)

	// Retrieval output landed in the knowledge log.
	knowledge, err := h.st.Knowledge(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, knowledge, 1)
	assert.Equal(t, "refund policy text", knowledge[0].Answer)
}

func TestDispatcher_ColdStartWithNilIntent(t *testing.T) {
	h := newAgentHarness(t)
	d := NewDispatcher(h.st, h.gateway(), nil)

	seedHistory(t, h.st, "s1", store.HistoryEntry{Role: store.RoleUser, Message: "hello"})

	outcome, err := d.DecideAndDispatch(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, outcome.Dispatched, "first message dispatches even with nil intent")
}

func TestDispatcher_StableIntent(t *testing.T) {
	h := newAgentHarness(t)
	h.setIntent("billing")
	d := NewDispatcher(h.st, h.gateway(), nil)

	seedHistory(t, h.st, "s1",
		store.HistoryEntry{Role: store.RoleUser, Message: "my bill is wrong", Intent: strPtr("billing")},
		store.HistoryEntry{Role: store.RoleUser, Message: "yes the bill from march"},
	)

	outcome, err := d.DecideAndDispatch(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, outcome.Dispatched)
	assert.Equal(t, ReasonIntentStable, outcome.Reason)

	classify, retrieve, suggest := h.counts()
	assert.Equal(t, 1, classify, "classification always runs")
	assert.Zero(t, retrieve)
	assert.Zero(t, suggest)
}

func TestDispatcher_ChangedIntent(t *testing.T) {
	h := newAgentHarness(t)
	h.setIntent("refund_request")
	d := NewDispatcher(h.st, h.gateway(), nil)

	seedHistory(t, h.st, "s1",
		store.HistoryEntry{Role: store.RoleUser, Message: "my bill is wrong", Intent: strPtr("billing")},
		store.HistoryEntry{Role: store.RoleUser, Message: "I want my money back"},
	)

	outcome, err := d.DecideAndDispatch(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, outcome.Dispatched)
	assert.Equal(t, ReasonIntentChanged, outcome.Reason)
	require.NotNil(t, outcome.PreviousIntent)
	assert.Equal(t, "billing", *outcome.PreviousIntent)

	_, retrieve, suggest := h.counts()
	assert.Equal(t, 1, retrieve)
	assert.Equal(t, 1, suggest)

	// Suggestion received the retrieval result directly.
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotNil(t, h.lastSuggest.Retrieved)
	assert.Equal(t, "refund policy text", h.lastSuggest.Retrieved.Answer)
	assert.Equal(t, "I want my money back", h.lastSuggest.Message)
}

func TestDispatcher_NilIntentComparisons(t *testing.T) {
	t.Run("NilToConcrete", func(t *testing.T) {
		h := newAgentHarness(t)
		h.setIntent("billing")
		d := NewDispatcher(h.st, h.gateway(), nil)

		seedHistory(t, h.st, "s1",
			store.HistoryEntry{Role: store.RoleUser, Message: "hm"},
			store.HistoryEntry{Role: store.RoleUser, Message: "about my bill"},
		)

		outcome, err := d.DecideAndDispatch(context.Background(), "s1")
		require.NoError(t, err)
		assert.True(t, outcome.Dispatched, "nil compares unequal to a concrete intent")
	})

	t.Run("NilToNil", func(t *testing.T) {
		h := newAgentHarness(t)
		d := NewDispatcher(h.st, h.gateway(), nil)

		seedHistory(t, h.st, "s1",
			store.HistoryEntry{Role: store.RoleUser, Message: "hm"},
			store.HistoryEntry{Role: store.RoleUser, Message: "hmm"},
		)

		outcome, err := d.DecideAndDispatch(context.Background(), "s1")
		require.NoError(t, err)
		assert.False(t, outcome.Dispatched, "nil equals nil")
	})
}

func TestDispatcher_ClassificationFailureAbortsDispatch(t *testing.T) {
	h := newAgentHarness(t)
	h.failClassify = true
	d := NewDispatcher(h.st, h.gateway(), nil)

	seedHistory(t, h.st, "s1", store.HistoryEntry{Role: store.RoleUser, Message: "hello"})

	_, err := d.DecideAndDispatch(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, serrors.KindAgentUnavailable, serrors.KindOf(err))

	_, retrieve, suggest := h.counts()
	assert.Zero(t, retrieve)
	assert.Zero(t, suggest)
}

func TestDispatcher_RetrievalFailureRetainsClassification(t *testing.T) {
	ctx := context.Background()
	h := newAgentHarness(t)
	h.setIntent("billing")
	h.failRetrieval = true
	d := NewDispatcher(h.st, h.gateway(), nil)

	seedHistory(t, h.st, "s1", store.HistoryEntry{Role: store.RoleUser, Message: "my bill"})

	_, err := d.DecideAndDispatch(ctx, "s1")
	require.Error(t, err)
	assert.Equal(t, serrors.KindAgentUnavailable, serrors.KindOf(err))

	// No rollback: the in-place classification update survives the failed
	// dispatch chain.
	history, err := h.st.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Intent)
	assert.Equal(t, "billing", *history[0].Intent)

	_, _, suggest := h.counts()
	assert.Zero(t, suggest, "suggestion is skipped after retrieval failure")
}

func TestDispatcher_EmptyHistory(t *testing.T) {
	h := newAgentHarness(t)
	h.setIntent("billing")
	d := NewDispatcher(h.st, h.gateway(), nil)

	_, err := d.DecideAndDispatch(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, serrors.KindSessionNotFound, serrors.KindOf(err))
}

func TestDispatcher_Decide_ReadOnly(t *testing.T) {
	h := newAgentHarness(t)
	d := NewDispatcher(h.st, h.gateway(), nil)

	seedHistory(t, h.st, "s1",
		store.HistoryEntry{Role: store.RoleUser, Message: "bill", Intent: strPtr("billing")},
		store.HistoryEntry{Role: store.RoleUser, Message: "refund", Intent: strPtr("refund_request")},
	)

	status, err := d.Decide(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, status.Entries, 2)
	assert.True(t, status.Outcome.Dispatched)
	assert.Equal(t, ReasonIntentChanged, status.Outcome.Reason)

	classify, retrieve, suggest := h.counts()
	assert.Zero(t, classify+retrieve+suggest, "inspection must not invoke agents")
}
