package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldSessionID is the field name for session ID.
	LogFieldSessionID = "session_id"
	// LogFieldRole is the field name for the message role.
	LogFieldRole = "role"
	// LogFieldAgent is the field name for the downstream agent kind.
	LogFieldAgent = "agent"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldErrorKind is the field name for the error kind.
	LogFieldErrorKind = "error_kind"
)

// SessionContext carries structured logging state for one coordination
// operation (an ingested message, a dispatch, or a completion).
type SessionContext struct {
	RequestID string
	SessionID string
	Role      string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewSessionContext creates a new session context with a generated request ID.
func NewSessionContext(logger *slog.Logger, sessionID, role string) *SessionContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionContext{
		RequestID: uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// Info logs an info message.
func (s *SessionContext) Info(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, s.combined(attrs...)...)
}

// Debug logs a debug message.
func (s *SessionContext) Debug(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, s.combined(attrs...)...)
}

// Warn logs a warning message.
func (s *SessionContext) Warn(msg string, attrs ...slog.Attr) {
	s.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, s.combined(attrs...)...)
}

// Error logs an error message with the error.
func (s *SessionContext) Error(msg string, err error, attrs ...slog.Attr) {
	all := append(attrs, slog.String("error", err.Error()))
	s.Logger.LogAttrs(context.Background(), slog.LevelError, msg, s.combined(all...)...)
}

// DurationMs returns the elapsed time in milliseconds.
func (s *SessionContext) DurationMs() int64 {
	return time.Since(s.StartTime).Milliseconds()
}

func (s *SessionContext) combined(attrs ...slog.Attr) []slog.Attr {
	base := []slog.Attr{
		slog.String(LogFieldRequestID, s.RequestID),
		slog.String(LogFieldSessionID, s.SessionID),
	}
	if s.Role != "" {
		base = append(base, slog.String(LogFieldRole, s.Role))
	}
	return append(base, attrs...)
}

type ctxKey struct{}

// WithSessionContext adds the session context to the context.
func WithSessionContext(ctx context.Context, sc *SessionContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext extracts the session context from the context.
func FromContext(ctx context.Context) (*SessionContext, bool) {
	sc, ok := ctx.Value(ctxKey{}).(*SessionContext)
	return sc, ok
}
