package middleware

import (
	"leadwallet/internal/apperror"
	"strings"

	"github.com/labstack/echo/v4"
)

const tokenKey = "bearer_token"

// Auth requires a bearer token and stores it on the context. The token is
// forwarded to the backend, which is the only party that validates it.
func Auth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				e := apperror.New(apperror.CategoryAuthExpired, apperror.MessageSessionExpired)
				e.RedirectToLogin = true
				return e
			}
			c.Set(tokenKey, token)
			return next(c)
		}
	}
}

func Token(c echo.Context) string {
	token, _ := c.Get(tokenKey).(string)
	return token
}
