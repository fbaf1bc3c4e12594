package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/conversation"
	"github.com/evcomx/ragcore/internal/knowledge"
	"github.com/evcomx/ragcore/internal/logging"
	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/tenant"
	"github.com/evcomx/ragcore/internal/tools"
	"github.com/evcomx/ragcore/internal/validation"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, tenant.ErrMissingTenant):
		return http.StatusBadRequest
	case errors.Is(err, knowledge.ErrNotFound),
		errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, memory.ErrNotFound),
		errors.Is(err, tenant.ErrNotFound),
		errors.Is(err, tools.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrSearchUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, tools.ErrToolExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := statusFor(err)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if s, ok := he.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(he.Code)
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error(c.Request().Context(), "request failed", zap.Error(err))
			msg = http.StatusText(status)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: msg})
		}
		if err != nil {
			logger.Warn(c.Request().Context(), "writing error response", zap.Error(err))
		}
	}
}
