package profile

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the coordinator server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Version is the current version of server
	Version string

	// RedisAddr points to the session store.
	RedisAddr string // RELAYHUB_REDIS_ADDR (default: localhost:6379)
	// RedisPassword is the session store password.
	RedisPassword string // RELAYHUB_REDIS_PASSWORD
	// RedisDB is the session store database number.
	RedisDB int // RELAYHUB_REDIS_DB (default: 0)

	// Downstream agent endpoints.
	ClassifierURL string // RELAYHUB_CLASSIFIER_URL
	RetrievalURL  string // RELAYHUB_RETRIEVAL_URL
	SuggestionURL string // RELAYHUB_SUGGESTION_URL
	SummarizerURL string // RELAYHUB_SUMMARIZER_URL
	CallbackURL   string // RELAYHUB_CALLBACK_URL

	// DebounceDuration is the coalescing window for message bursts.
	DebounceDuration time.Duration // RELAYHUB_DEBOUNCE_DURATION (default: 1s)
	// DebouncePerRole keys debounce timers by (session, role) instead of session.
	DebouncePerRole bool // RELAYHUB_DEBOUNCE_PER_ROLE (default: true)
	// DispatchTimeout bounds one whole dispatch chain (classify + retrieve + suggest).
	DispatchTimeout time.Duration // RELAYHUB_DISPATCH_TIMEOUT (default: 60s)
	// SessionTTL evicts idle in-memory session state when non-zero.
	SessionTTL time.Duration // RELAYHUB_SESSION_TTL (default: 0, disabled)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.RedisAddr = getEnvOrDefault("RELAYHUB_REDIS_ADDR", "localhost:6379")
	p.RedisPassword = os.Getenv("RELAYHUB_REDIS_PASSWORD")
	if db := os.Getenv("RELAYHUB_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			p.RedisDB = n
		}
	}

	p.ClassifierURL = getEnvOrDefault("RELAYHUB_CLASSIFIER_URL", "http://eia-agent:8001")
	p.RetrievalURL = getEnvOrDefault("RELAYHUB_RETRIEVAL_URL", "http://rag-agent:8002")
	p.SuggestionURL = getEnvOrDefault("RELAYHUB_SUGGESTION_URL", "http://asa-agent:8003")
	p.SummarizerURL = getEnvOrDefault("RELAYHUB_SUMMARIZER_URL", "http://sqa-agent:8004")
	p.CallbackURL = getEnvOrDefault("RELAYHUB_CALLBACK_URL", "http://backend:8000/sessions/callback")

	p.DebounceDuration = getDurationEnv("RELAYHUB_DEBOUNCE_DURATION", time.Second)
	p.DebouncePerRole = getEnvOrDefault("RELAYHUB_DEBOUNCE_PER_ROLE", "true") == "true"
	p.DispatchTimeout = getDurationEnv("RELAYHUB_DISPATCH_TIMEOUT", 60*time.Second)
	p.SessionTTL = getDurationEnv("RELAYHUB_SESSION_TTL", 0)
}

// Validate checks the profile for misconfiguration.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.RedisAddr == "" {
		return errors.New("redis address is required")
	}
	for name, raw := range map[string]string{
		"classifier": p.ClassifierURL,
		"retrieval":  p.RetrievalURL,
		"suggestion": p.SuggestionURL,
		"summarizer": p.SummarizerURL,
		"callback":   p.CallbackURL,
	} {
		if raw == "" {
			return errors.Errorf("%s URL is required", name)
		}
		if _, err := url.Parse(raw); err != nil {
			return errors.Wrapf(err, "invalid %s URL", name)
		}
	}
	if p.DebounceDuration < 0 {
		return errors.New("debounce duration must not be negative")
	}
	if p.DispatchTimeout <= 0 {
		return errors.New("dispatch timeout must be positive")
	}
	return nil
}

func (p *Profile) String() string {
	return fmt.Sprintf("relayhub %s (%s) listening on %s:%d, store %s, debounce %s (per-role %t)",
		p.Version, p.Mode, p.Addr, p.Port, p.RedisAddr, p.DebounceDuration, p.DebouncePerRole)
}
