package dialog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hrygo/relayhub/plugin/agents"
	"github.com/hrygo/relayhub/store"
	storetest "github.com/hrygo/relayhub/store/test"
)

// agentHarness is a fake agent fleet: one httptest server answering for the
// classifier, retrieval, suggestion and summarizer agents plus the callback
// consumer, with call counters and scripted failures.
type agentHarness struct {
	t *testing.T

	st     *store.Store
	driver *storetest.FakeDriver
	server *httptest.Server

	mu sync.Mutex

	// Scripted classifier output.
	intent  *string
	emotion *string

	failClassify  bool
	failRetrieval bool
	failSuggest   bool
	failSummarize bool
	// skipFeedback makes the summarizer succeed without persisting.
	skipFeedback bool

	classifyN  int
	retrieveN  int
	suggestN   int
	summarizeN int
	notifyN    int
	callbackN  int

	lastSuggest        agents.SuggestInput
	lastNotifyMessage  string
	lastCallbackClient string
	lastCallbackBody   map[string]any
}

func newAgentHarness(t *testing.T) *agentHarness {
	t.Helper()

	st, driver := storetest.NewTestingStore()
	h := &agentHarness{t: t, st: st, driver: driver}

	mux := http.NewServeMux()
	mux.HandleFunc("/classify", h.handleClassify)
	mux.HandleFunc("/retrieve", h.handleRetrieve)
	mux.HandleFunc("/suggest", h.handleSuggest)
	mux.HandleFunc("/notify", h.handleNotify)
	mux.HandleFunc("/summarize", h.handleSummarize)
	mux.HandleFunc("/callback", h.handleCallback)
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)

	return h
}

func (h *agentHarness) gateway() *agents.Client {
	config := agents.DefaultConfig()
	config.ClassifierURL = h.server.URL
	config.RetrievalURL = h.server.URL
	config.SuggestionURL = h.server.URL
	config.SummarizerURL = h.server.URL
	config.CallbackURL = h.server.URL + "/callback"
	config.ClassifierTimeout = 2 * time.Second
	config.RetrievalTimeout = 2 * time.Second
	config.SuggestionTimeout = 2 * time.Second
	config.SummarizerTimeout = 2 * time.Second
	config.CallbackTimeout = 2 * time.Second
	return agents.NewClient(config, nil)
}

func (h *agentHarness) setIntent(intent string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.intent = &intent
}

func (h *agentHarness) counts() (classify, retrieve, suggest int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.classifyN, h.retrieveN, h.suggestN
}

func (h *agentHarness) handleClassify(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	h.classifyN++
	fail := h.failClassify
	result := agents.ClassifyResult{Intent: h.intent, Emotion: h.emotion}
	h.mu.Unlock()

	if fail {
		http.Error(w, "classifier down", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func (h *agentHarness) handleRetrieve(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	h.retrieveN++
	fail := h.failRetrieval
	h.mu.Unlock()

	if fail {
		http.Error(w, "retrieval down", http.StatusInternalServerError)
		return
	}
	source := "kb://refunds/42"
	writeJSON(w, agents.RetrieveResult{Answer: "refund policy text", Source: &source})
}

func (h *agentHarness) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var input agents.SuggestInput
	_ = json.NewDecoder(r.Body).Decode(&input)

	h.mu.Lock()
	h.suggestN++
	h.lastSuggest = input
	fail := h.failSuggest
	h.mu.Unlock()

	if fail {
		http.Error(w, "suggestion down", http.StatusInternalServerError)
		return
	}
	writeJSON(w, agents.SuggestResult{Suggestion: "offer the refund"})
}

func (h *agentHarness) handleNotify(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	h.mu.Lock()
	h.notifyN++
	h.lastNotifyMessage = payload.Message
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (h *agentHarness) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	h.mu.Lock()
	h.summarizeN++
	fail := h.failSummarize
	skip := h.skipFeedback
	h.mu.Unlock()

	if fail {
		http.Error(w, "summarizer down", http.StatusBadGateway)
		return
	}
	if !skip {
		raw, _ := json.Marshal(store.FeedbackEntry{
			Summary:       map[string]any{"text": "customer asked about refunds"},
			QualityReview: map[string]any{"score": 0.9},
		})
		_ = h.driver.Append(r.Context(), store.FeedbackKey(payload.SessionID), string(raw))
	}
	w.WriteHeader(http.StatusOK)
}

func (h *agentHarness) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)

	h.mu.Lock()
	h.callbackN++
	h.lastCallbackClient = r.Header.Get("X-Client-ID")
	h.lastCallbackBody = decoded
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// seedHistory appends entries directly to the fake store.
func seedHistory(t *testing.T, st *store.Store, sessionID string, entries ...store.HistoryEntry) {
	t.Helper()
	for _, entry := range entries {
		if err := st.AppendHistory(context.Background(), sessionID, entry); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
}

func strPtr(s string) *string { return &s }

// waitFor polls cond until it is true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
