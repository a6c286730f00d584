// Package v1 exposes the coordinator's JSON HTTP API.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/relayhub/internal/profile"
	serrors "github.com/hrygo/relayhub/internal/errors"
	"github.com/hrygo/relayhub/server/middleware"
	"github.com/hrygo/relayhub/server/service/dialog"
	"github.com/hrygo/relayhub/store"
)

// APIV1Service wires the coordination service into echo routes.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Dialog  *dialog.Service

	limiter *middleware.SessionRateLimiter
	logger  *slog.Logger
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(p *profile.Profile, st *store.Store, dlg *dialog.Service, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIV1Service{
		Profile: p,
		Store:   st,
		Dialog:  dlg,
		limiter: middleware.NewSessionRateLimiter(10, 20),
		logger:  logger,
	}
}

// RegisterRoutes attaches all v1 routes to the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.Use(echomw.Recover())
	e.GET("/healthz", s.healthz)

	g := e.Group("/api/v1")
	g.POST("/sessions", s.createSession)
	g.POST("/sessions/:id/messages", s.addMessage)
	g.POST("/sessions/:id/complete", s.completeSession)
	g.GET("/sessions/:id/history", s.getHistory)
	g.DELETE("/sessions/:id/history", s.deleteHistory)
	g.GET("/sessions/:id/knowledge", s.getKnowledge)
	g.DELETE("/sessions/:id/knowledge", s.deleteKnowledge)
	g.GET("/sessions/:id/answers", s.getAnswers)
	g.DELETE("/sessions/:id/answers", s.deleteAnswers)
	g.GET("/sessions/:id/intent", s.getIntent)
}

func (s *APIV1Service) healthz(c echo.Context) error {
	if err := s.Store.Ping(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// errorBody is the machine-readable error envelope every route returns.
type errorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// writeError maps a service error onto HTTP status semantics: 4xx for
// missing/invalid sessions, 502-style for downstream agent or store failures.
func writeError(c echo.Context, err error) error {
	kind := serrors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case serrors.KindSessionNotFound:
		status = http.StatusNotFound
	case serrors.KindInvalidArgument:
		status = http.StatusBadRequest
	case serrors.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	case serrors.KindAgentUnavailable, serrors.KindAgentBadResponse:
		status = http.StatusBadGateway
	case serrors.KindAmbiguousTeardown:
		status = http.StatusInternalServerError
	}
	return c.JSON(status, errorBody{Kind: string(kind), Detail: err.Error()})
}
