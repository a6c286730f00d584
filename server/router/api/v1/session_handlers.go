package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	serrors "github.com/hrygo/relayhub/internal/errors"
	"github.com/hrygo/relayhub/server/internal/observability"
	"github.com/hrygo/relayhub/store"
)

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	ClientID  string `json:"client_id"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *APIV1Service) createSession(c echo.Context) error {
	sessionID, clientID := s.Dialog.CreateSession()
	return c.JSON(http.StatusOK, createSessionResponse{SessionID: sessionID, ClientID: clientID})
}

// addMessage ingests one message. The response acknowledges buffering only;
// the downstream dispatch runs after the debounce window on its own deadline.
func (s *APIV1Service) addMessage(c echo.Context) error {
	sessionID := c.Param("id")
	if !s.limiter.Allow(sessionID) {
		return c.JSON(http.StatusTooManyRequests, errorBody{
			Kind:   "RATE_LIMITED",
			Detail: "too many messages for this session",
		})
	}

	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, serrors.Wrap(serrors.KindInvalidArgument, "invalid message payload", err))
	}

	sc := observability.NewSessionContext(s.logger, sessionID, req.Role)
	ctx := observability.WithSessionContext(c.Request().Context(), sc)
	if err := s.Dialog.Ingest(ctx, sessionID, req.Role, req.Content); err != nil {
		sc.Error("message ingestion failed", err)
		return writeError(c, err)
	}

	sc.Info("message buffered")
	return c.JSON(http.StatusAccepted, statusResponse{Status: "buffered"})
}

// completeSession blocks until aggregation finishes or fails.
func (s *APIV1Service) completeSession(c echo.Context) error {
	sessionID := c.Param("id")
	sc := observability.NewSessionContext(s.logger, sessionID, "")
	ctx := observability.WithSessionContext(c.Request().Context(), sc)

	result, err := s.Dialog.Complete(ctx, sessionID)
	if err != nil {
		sc.Error("session completion failed", err)
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *APIV1Service) getIntent(c echo.Context) error {
	status, err := s.Dialog.IntentStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

type historyResponse struct {
	History []store.HistoryEntry `json:"history"`
}

func (s *APIV1Service) getHistory(c echo.Context) error {
	sessionID := c.Param("id")
	history, err := s.Store.History(c.Request().Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	if len(history) == 0 {
		return writeError(c, serrors.Newf(serrors.KindSessionNotFound, "no history for session %s", sessionID))
	}
	return c.JSON(http.StatusOK, historyResponse{History: history})
}

func (s *APIV1Service) deleteHistory(c echo.Context) error {
	if err := s.Store.DeleteHistory(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "deleted"})
}

type knowledgeResponse struct {
	Knowledge []store.KnowledgeEntry `json:"knowledge"`
}

func (s *APIV1Service) getKnowledge(c echo.Context) error {
	sessionID := c.Param("id")
	knowledge, err := s.Store.Knowledge(c.Request().Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	if len(knowledge) == 0 {
		return writeError(c, serrors.Newf(serrors.KindSessionNotFound, "no knowledge for session %s", sessionID))
	}
	return c.JSON(http.StatusOK, knowledgeResponse{Knowledge: knowledge})
}

func (s *APIV1Service) deleteKnowledge(c echo.Context) error {
	if err := s.Store.DeleteKnowledge(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "deleted"})
}

type answersResponse struct {
	Answers []string `json:"answers"`
}

func (s *APIV1Service) getAnswers(c echo.Context) error {
	sessionID := c.Param("id")
	answers, err := s.Store.Answers(c.Request().Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	if len(answers) == 0 {
		return writeError(c, serrors.Newf(serrors.KindSessionNotFound, "no answers for session %s", sessionID))
	}
	return c.JSON(http.StatusOK, answersResponse{Answers: answers})
}

// deleteAnswers removes the answer log and returns the removed records.
func (s *APIV1Service) deleteAnswers(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("id")

	answers, err := s.Store.Answers(ctx, sessionID)
	if err != nil {
		return writeError(c, err)
	}
	if len(answers) == 0 {
		return writeError(c, serrors.Newf(serrors.KindSessionNotFound, "no answers for session %s", sessionID))
	}
	if err := s.Store.DeleteAnswers(ctx, sessionID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, answersResponse{Answers: answers})
}
