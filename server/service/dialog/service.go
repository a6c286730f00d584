// Package dialog implements the coordination engine: debounced session
// buffering, change-detection dispatch and session aggregation, glued to the
// session store and the agent gateway.
package dialog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/relayhub/plugin/agents"
	serrors "github.com/hrygo/relayhub/internal/errors"
	"github.com/hrygo/relayhub/store"
)

// Config holds service configuration.
type Config struct {
	// Debounce is the coalescing policy applied to inbound messages.
	Debounce Policy
	// DispatchTimeout bounds one whole dispatch chain. A fired timer runs
	// classification, retrieval and suggestion under this single deadline.
	DispatchTimeout time.Duration
	// FailureBuffer sizes the dispatch-failure channel. When full, further
	// failures are logged and dropped rather than blocking dispatch.
	FailureBuffer int
}

// DefaultConfig returns default service configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:        Policy{Duration: time.Second, PerRole: true},
		DispatchTimeout: 60 * time.Second,
		FailureBuffer:   64,
	}
}

// sessionState is the coordinator-owned, in-memory side of a session. It is
// not persisted; a process restart loses pending timers by design.
type sessionState struct {
	clientID     string
	createdAt    time.Time
	lastActivity time.Time

	// mu serializes completion for this session.
	mu        sync.Mutex
	completed bool
}

// Service is the coordination service. Operations on different sessions run
// fully in parallel; within one session the buffer manager lock and the
// per-session completion lock provide the required mutual exclusion.
type Service struct {
	config     Config
	store      *store.Store
	gateway    *agents.Client
	dispatcher *Dispatcher
	aggregator *Aggregator
	buffer     *bufferManager
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionState

	failures chan DispatchFailure
}

// NewService wires the coordination engine together.
func NewService(config Config, st *store.Store, gateway *agents.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = 60 * time.Second
	}
	if config.FailureBuffer <= 0 {
		config.FailureBuffer = 64
	}

	s := &Service{
		config:     config,
		store:      st,
		gateway:    gateway,
		dispatcher: NewDispatcher(st, gateway, logger),
		aggregator: NewAggregator(st, gateway, logger),
		logger:     logger,
		sessions:   make(map[string]*sessionState),
		failures:   make(chan DispatchFailure, config.FailureBuffer),
	}
	s.buffer = newBufferManager(config.Debounce, s.fireDispatch, logger)
	return s
}

// Store exposes the session store for read-only inspection routes.
func (s *Service) Store() *store.Store {
	return s.store
}

// CreateSession mints a new session and its correlation client id.
func (s *Service) CreateSession() (sessionID, clientID string) {
	sessionID = shortuuid.New()
	clientID = shortuuid.New()
	now := time.Now()

	s.mu.Lock()
	s.sessions[sessionID] = &sessionState{
		clientID:     clientID,
		createdAt:    now,
		lastActivity: now,
	}
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", sessionID, "client_id", clientID)
	return sessionID, clientID
}

// SessionExists reports whether the session is live in this coordinator.
func (s *Service) SessionExists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Ingest appends the message to the session history and buffers it for
// dispatch. It returns as soon as the message is durable and buffered;
// acknowledgement is not confirmation of downstream dispatch.
func (s *Service) Ingest(ctx context.Context, sessionID, role, content string) error {
	if role != store.RoleUser && role != store.RoleOperator {
		return serrors.Newf(serrors.KindInvalidArgument, "unknown role %q", role)
	}
	if content == "" {
		return serrors.New(serrors.KindInvalidArgument, "content must not be empty")
	}

	state, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	if err := s.store.AppendHistory(ctx, sessionID, store.HistoryEntry{
		Role:    role,
		Message: content,
	}); err != nil {
		return err
	}

	s.touch(state)
	s.buffer.Enqueue(sessionID, role, content)
	return nil
}

// Complete runs the aggregation sequence for the session and tears it down.
// Completion is serialized per session; a second concurrent caller waits and
// then observes the session as gone.
func (s *Service) Complete(ctx context.Context, sessionID string) (*AggregatedResult, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.completed {
		return nil, serrors.Newf(serrors.KindSessionNotFound, "session %s already completed", sessionID)
	}

	s.buffer.CancelSession(sessionID)

	result, err := s.aggregator.Complete(ctx, sessionID, state.clientID)
	if err != nil {
		return nil, err
	}

	state.completed = true
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return result, nil
}

// IntentStatus reports the last-two-entry intent comparison without
// dispatching anything.
func (s *Service) IntentStatus(ctx context.Context, sessionID string) (*IntentStatus, error) {
	return s.dispatcher.Decide(ctx, sessionID)
}

// DispatchFailures exposes the outcomes of fire-and-forget dispatches whose
// ingestion callers have long since been acknowledged.
func (s *Service) DispatchFailures() <-chan DispatchFailure {
	return s.failures
}

// Close cancels all pending timers. In-flight dispatches run to completion.
func (s *Service) Close() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.buffer.CancelSession(id)
	}
}

// fireDispatch is the debounce fire handler. It runs on the timer goroutine
// with its own deadline; once the downstream calls start there is no
// cancellation path.
func (s *Service) fireDispatch(sessionID, role, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.DispatchTimeout)
	defer cancel()

	var err error
	switch role {
	case store.RoleUser:
		_, err = s.dispatcher.DecideAndDispatch(ctx, sessionID)
	case store.RoleOperator:
		err = s.gateway.NotifyOperatorMessage(ctx, sessionID, message)
		if err != nil {
			err = coordErr(err, "operator relay failed")
		}
	}
	if err == nil {
		return
	}

	s.logger.Warn("dispatch failed",
		"session_id", sessionID, "role", role, "error", err.Error())
	select {
	case s.failures <- DispatchFailure{SessionID: sessionID, Role: role, Err: err, At: time.Now()}:
	default:
		s.logger.Warn("dispatch failure channel full, dropping", "session_id", sessionID)
	}
}

func (s *Service) lookup(sessionID string) (*sessionState, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, serrors.Newf(serrors.KindSessionNotFound, "session %s not found", sessionID)
	}
	return state, nil
}

func (s *Service) touch(state *sessionState) {
	s.mu.Lock()
	state.lastActivity = time.Now()
	s.mu.Unlock()
}
