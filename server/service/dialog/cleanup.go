package dialog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCleanupInterval is how often the cleanup job scans for idle sessions.
	DefaultCleanupInterval = 10 * time.Minute
)

// CleanupConfig holds configuration for the session cleanup job.
type CleanupConfig struct {
	// SessionTTL evicts coordinator memory for sessions idle longer than
	// this. Zero disables the job entirely: the historical behavior holds
	// sessions until explicit completion.
	SessionTTL time.Duration
	// Interval is how often to scan. Defaults to DefaultCleanupInterval.
	Interval time.Duration
}

// CleanupJob periodically drops in-memory state (timers, registry entries)
// for idle sessions. It never touches the store: the persisted logs remain
// readable and completable through their external keys, so completion
// semantics stay unchanged.
type CleanupJob struct {
	service *Service
	config  CleanupConfig
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCleanupJob creates a cleanup job for the service.
func NewCleanupJob(service *Service, config CleanupConfig) *CleanupJob {
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupInterval
	}
	return &CleanupJob{
		service: service,
		config:  config,
		logger:  service.logger,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the cleanup loop. A zero TTL makes Start a no-op.
func (j *CleanupJob) Start(ctx context.Context) {
	if j.config.SessionTTL <= 0 {
		return
	}

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.mu.Unlock()

	j.wg.Add(1)
	go j.run(ctx)
	j.logger.Info("session cleanup started",
		"ttl", j.config.SessionTTL, "interval", j.config.Interval)
}

// Stop gracefully stops the cleanup loop.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopCh)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("session cleanup stopped")
}

func (j *CleanupJob) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			evicted := j.RunOnce()
			if evicted > 0 {
				j.logger.Info("evicted idle sessions", "count", evicted)
			}
		}
	}
}

// RunOnce performs a single eviction pass and returns the number of sessions
// evicted. Exposed for tests.
func (j *CleanupJob) RunOnce() int {
	cutoff := time.Now().Add(-j.config.SessionTTL)

	j.service.mu.Lock()
	var expired []string
	for id, state := range j.service.sessions {
		if state.lastActivity.Before(cutoff) {
			expired = append(expired, id)
			delete(j.service.sessions, id)
		}
	}
	j.service.mu.Unlock()

	for _, id := range expired {
		j.service.buffer.CancelSession(id)
	}
	return len(expired)
}
