package handler

import (
	"leadwallet/internal/apperror"
	"leadwallet/internal/dto"
	"leadwallet/internal/middleware"
	"leadwallet/internal/model"
	"leadwallet/internal/session"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type SessionHandler struct {
	sessions *session.Manager
}

func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
	}
}

// Open starts the wallet session after login. The body is the identity
// payload the backend returned on login.
func (h *SessionHandler) Open(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.OpenSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.CategoryInvalidRequest, "invalid req body")
	}

	sess, err := h.sessions.Open(ctx, middleware.Token(c), req.User)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.SessionResponse{
		UserID: sess.UserID,
		Wallet: sess.Store.Snapshot(),
	})
}

func (h *SessionHandler) Close(c echo.Context) error {
	h.sessions.Close(middleware.Token(c))
	return c.NoContent(http.StatusNoContent)
}

// current returns the caller's session, opening one from the backend when
// the dashboard skipped POST /api/session.
func current(c echo.Context, sessions *session.Manager) (*session.Session, error) {
	token := middleware.Token(c)
	if sess, ok := sessions.Get(token); ok {
		return sess, nil
	}
	return sessions.Open(c.Request().Context(), token, nil)
}

// currency reads an optional currency, defaulting to INR.
func currency(raw string) (model.Currency, error) {
	if strings.TrimSpace(raw) == "" {
		return model.CurrencyINR, nil
	}
	cur, err := model.ParseCurrency(raw)
	if err != nil {
		return "", apperror.Wrap(apperror.CategoryInvalidRequest, "Select a supported currency", err)
	}
	return cur, nil
}
