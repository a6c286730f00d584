// Package store provides the typed client for the session store: per-session
// ordered logs of history, knowledge, answer and feedback records.
//
// The store is shared and externally durable; downstream agents append to the
// knowledge and answer logs concurrently with this process. There is no
// ordering guarantee between the in-place classification update of the last
// history entry and a concurrent read of that entry by another path (for
// example a completion racing an in-flight dispatch). ReplaceLast in the
// Redis driver is transactional against concurrent appends, which closes the
// lost-update window on the write side; the cross-path read race remains by
// design.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	serrors "github.com/hrygo/relayhub/internal/errors"
)

// Message roles as stored in history entries.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
)

// HistoryEntry is one message in a session's history log. Emotion and Intent
// are nil until the classification agent has run for the entry.
type HistoryEntry struct {
	Role    string  `json:"role"`
	Message string  `json:"message"`
	Emotion *string `json:"emotion,omitempty"`
	Intent  *string `json:"intent,omitempty"`
}

// KnowledgeEntry is one retrieval result in a session's knowledge log.
type KnowledgeEntry struct {
	Answer string  `json:"answer"`
	Source *string `json:"source,omitempty"`
}

// answerRecord is the wire shape the suggestion agent writes to the answer log.
type answerRecord struct {
	Answer string `json:"answer"`
}

// FeedbackEntry is the consolidated summary the summarizer persists under the
// session's feedback key.
type FeedbackEntry struct {
	Summary       map[string]any `json:"summary"`
	QualityReview map[string]any `json:"quality_review"`
}

// Key namespaces, one ordered log per session per namespace.
func HistoryKey(sessionID string) string   { return "history:" + sessionID }
func KnowledgeKey(sessionID string) string { return "knowledge:" + sessionID }
func AnswerKey(sessionID string) string    { return "answer:" + sessionID }
func FeedbackKey(sessionID string) string  { return "feedback:" + sessionID }

// Store is the typed facade over a Driver.
type Store struct {
	driver Driver
	logger *slog.Logger
}

// New creates a store over the given driver.
func New(driver Driver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{driver: driver, logger: logger}
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Ping checks store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.Ping(ctx); err != nil {
		return serrors.Wrap(serrors.KindStoreUnavailable, "session store unreachable", err)
	}
	return nil
}

// AppendHistory appends one entry to the session's history log.
func (s *Store) AppendHistory(ctx context.Context, sessionID string, entry HistoryEntry) error {
	return s.append(ctx, HistoryKey(sessionID), entry)
}

// ReplaceLastHistory overwrites the last history entry in place. Used by the
// classification step to patch intent and emotion into an already-appended
// message.
func (s *Store) ReplaceLastHistory(ctx context.Context, sessionID string, entry HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return serrors.Wrap(serrors.KindInvalidArgument, "encode history entry", err)
	}
	if err := s.driver.ReplaceLast(ctx, HistoryKey(sessionID), string(raw)); err != nil {
		if err == ErrEmptyLog {
			return serrors.Newf(serrors.KindSessionNotFound, "no history for session %s", sessionID)
		}
		return serrors.Wrap(serrors.KindStoreUnavailable, "replace last history entry", err)
	}
	return nil
}

// History returns the session's full history log in arrival order.
func (s *Store) History(ctx context.Context, sessionID string) ([]HistoryEntry, error) {
	return readLog[HistoryEntry](ctx, s, HistoryKey(sessionID), 0, -1)
}

// LastHistory returns up to n trailing history entries in arrival order.
func (s *Store) LastHistory(ctx context.Context, sessionID string, n int64) ([]HistoryEntry, error) {
	return readLog[HistoryEntry](ctx, s, HistoryKey(sessionID), -n, -1)
}

// AppendKnowledge appends one retrieval result to the session's knowledge log.
func (s *Store) AppendKnowledge(ctx context.Context, sessionID string, entry KnowledgeEntry) error {
	return s.append(ctx, KnowledgeKey(sessionID), entry)
}

// Knowledge returns the session's full knowledge log.
func (s *Store) Knowledge(ctx context.Context, sessionID string) ([]KnowledgeEntry, error) {
	return readLog[KnowledgeEntry](ctx, s, KnowledgeKey(sessionID), 0, -1)
}

// Answers returns the answer strings accumulated for the session. The
// suggestion agent writes these; malformed records are skipped with a warning
// rather than failing the read.
func (s *Store) Answers(ctx context.Context, sessionID string) ([]string, error) {
	raws, err := s.driver.ReadRange(ctx, AnswerKey(sessionID), 0, -1)
	if err != nil {
		return nil, serrors.Wrap(serrors.KindStoreUnavailable, "read answer log", err)
	}
	answers := make([]string, 0, len(raws))
	for _, raw := range raws {
		var rec answerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping malformed answer record",
				"session_id", sessionID, "error", err)
			continue
		}
		answers = append(answers, rec.Answer)
	}
	return answers, nil
}

// LastFeedback returns the most recent feedback entry for the session, or a
// SessionNotFound error when none has been persisted.
func (s *Store) LastFeedback(ctx context.Context, sessionID string) (*FeedbackEntry, error) {
	entries, err := readLog[FeedbackEntry](ctx, s, FeedbackKey(sessionID), -1, -1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, serrors.Newf(serrors.KindSessionNotFound, "no feedback for session %s", sessionID)
	}
	return &entries[len(entries)-1], nil
}

// HistoryExists reports whether the session has any history.
func (s *Store) HistoryExists(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.driver.Exists(ctx, HistoryKey(sessionID))
	if err != nil {
		return false, serrors.Wrap(serrors.KindStoreUnavailable, "check history key", err)
	}
	return ok, nil
}

// DeleteHistory removes the session's history log.
func (s *Store) DeleteHistory(ctx context.Context, sessionID string) error {
	return s.delete(ctx, HistoryKey(sessionID))
}

// DeleteKnowledge removes the session's knowledge log.
func (s *Store) DeleteKnowledge(ctx context.Context, sessionID string) error {
	return s.delete(ctx, KnowledgeKey(sessionID))
}

// DeleteAnswers removes the session's answer log.
func (s *Store) DeleteAnswers(ctx context.Context, sessionID string) error {
	return s.delete(ctx, AnswerKey(sessionID))
}

// DeleteSession removes every log belonging to the session. Returns the first
// failure; keys already deleted stay deleted, which is why completion treats a
// partial failure here as an ambiguous teardown.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	for _, key := range []string{
		HistoryKey(sessionID),
		KnowledgeKey(sessionID),
		AnswerKey(sessionID),
		FeedbackKey(sessionID),
	} {
		if err := s.delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) append(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return serrors.Wrap(serrors.KindInvalidArgument, fmt.Sprintf("encode entry for %s", key), err)
	}
	if err := s.driver.Append(ctx, key, string(raw)); err != nil {
		return serrors.Wrap(serrors.KindStoreUnavailable, fmt.Sprintf("append to %s", key), err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	if err := s.driver.Delete(ctx, key); err != nil {
		return serrors.Wrap(serrors.KindStoreUnavailable, fmt.Sprintf("delete %s", key), err)
	}
	return nil
}

func readLog[T any](ctx context.Context, s *Store, key string, start, end int64) ([]T, error) {
	raws, err := s.driver.ReadRange(ctx, key, start, end)
	if err != nil {
		return nil, serrors.Wrap(serrors.KindStoreUnavailable, fmt.Sprintf("read %s", key), err)
	}
	entries := make([]T, 0, len(raws))
	for _, raw := range raws {
		var entry T
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, serrors.Wrap(serrors.KindStoreUnavailable, fmt.Sprintf("decode entry in %s", key), err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
