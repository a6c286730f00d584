package dialog

import (
	"log/slog"
	"sync"
	"time"
)

// Policy configures message coalescing. The surrounding deployment used a mix
// of debounce windows and timer scopes; this unifies them behind one knob
// pair.
type Policy struct {
	// Duration is the coalescing window. Zero still defers dispatch to a
	// separate goroutine but fires immediately.
	Duration time.Duration
	// PerRole keys timers by (session, role) so user and operator bursts
	// debounce independently. When false a single timer covers the session.
	PerRole bool
}

type timerKey struct {
	sessionID string
	role      string
}

// pending is the buffered state behind one live timer.
type pending struct {
	timer   *time.Timer
	seq     uint64
	role    string
	message string
}

// bufferManager is the per-session debounce state machine. A burst of
// same-role messages collapses into a single fire carrying the latest
// message; earlier messages of the burst stay in the history log but are not
// resent downstream.
type bufferManager struct {
	policy Policy
	fire   func(sessionID, role, message string)
	logger *slog.Logger

	mu      sync.Mutex
	pending map[timerKey]*pending
	seq     uint64
}

func newBufferManager(policy Policy, fire func(sessionID, role, message string), logger *slog.Logger) *bufferManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &bufferManager{
		policy:  policy,
		fire:    fire,
		logger:  logger,
		pending: make(map[timerKey]*pending),
	}
}

func (m *bufferManager) key(sessionID, role string) timerKey {
	if m.policy.PerRole {
		return timerKey{sessionID: sessionID, role: role}
	}
	return timerKey{sessionID: sessionID}
}

// Enqueue buffers a message. If a timer is already live for the key it is
// cancelled and restarted; the cancel-and-reschedule step runs under the
// manager lock so two near-simultaneous messages cannot both schedule timers.
func (m *bufferManager) Enqueue(sessionID, role, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.key(sessionID, role)
	if p, ok := m.pending[key]; ok {
		p.timer.Stop()
	}

	m.seq++
	seq := m.seq
	p := &pending{seq: seq, role: role, message: message}
	p.timer = time.AfterFunc(m.policy.Duration, func() {
		m.fireExpired(key, seq)
	})
	m.pending[key] = p
}

// fireExpired resolves the race between a firing timer and a concurrent
// Enqueue that cancelled it: the fire only proceeds if the pending slot still
// carries the sequence number the timer was scheduled with. The slot is
// cleared before dispatch starts, so a new burst can begin while this one is
// still in flight.
func (m *bufferManager) fireExpired(key timerKey, seq uint64) {
	m.mu.Lock()
	p, ok := m.pending[key]
	if !ok || p.seq != seq {
		m.mu.Unlock()
		return
	}
	delete(m.pending, key)
	role, message := p.role, p.message
	m.mu.Unlock()

	m.fire(key.sessionID, role, message)
}

// CancelSession drops any live timers for the session. Used at completion and
// by the cleanup job.
func (m *bufferManager) CancelSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.pending {
		if key.sessionID == sessionID {
			p.timer.Stop()
			delete(m.pending, key)
		}
	}
}

// PendingCount reports the number of live timers, for tests and stats.
func (m *bufferManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
