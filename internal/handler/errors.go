package handler

import (
	"errors"
	"fmt"
	"leadwallet/internal/apperror"
	"leadwallet/internal/dto"
	"leadwallet/internal/middleware"
	"leadwallet/internal/session"
	"leadwallet/pkg/logger"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler renders every error as a dto.ErrorResponse. An expired
// backend session also drops the local one so the next login starts clean.
func NewHTTPErrorHandler(sessions *session.Manager, log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		resp := dto.ErrorResponse{
			Category: string(apperror.CategoryUnknown),
			Message:  "Something went wrong",
		}

		var ae *apperror.Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			status = ae.HTTPStatus()
			resp = dto.ErrorResponse{
				Category:            string(ae.Category),
				Message:             ae.Message,
				RedirectToLogin:     ae.RedirectToLogin,
				RedirectToDashboard: ae.RedirectToDashboard,
				RedirectToWallet:    ae.RedirectToWallet,
			}
			if ae.Category == apperror.CategoryAuthExpired {
				resp.RedirectToLogin = true
				if token := middleware.Token(c); token != "" && sessions != nil {
					sessions.Close(token)
				}
			}
			if status >= http.StatusInternalServerError {
				log.Errorw("request failed", "path", c.Path(), "category", ae.Category, "error", err)
			}
		case errors.As(err, &he):
			status = he.Code
			resp.Category = string(categoryForStatus(he.Code))
			resp.Message = fmt.Sprint(he.Message)
		default:
			log.Errorw("unhandled error", "path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, resp)
		}
		if err != nil {
			log.Errorw("failed to write error response", "error", err)
		}
	}
}

func categoryForStatus(status int) apperror.Category {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperror.CategoryInvalidRequest
	case http.StatusUnauthorized:
		return apperror.CategoryAuthExpired
	case http.StatusNotFound:
		return apperror.CategoryNotFound
	}
	return apperror.CategoryUnknown
}
