package presenter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
)

func respond(c echo.Context, code int, message string, payload any) error {
	return c.JSON(code, agentdesk.Response[any]{
		Success: true,
		Message: message,
		Data:    payload,
	})
}

func fail(c echo.Context, code int, message string, err error) error {
	detail := message
	if err != nil {
		detail = err.Error()
	}

	level := slog.LevelInfo
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(c.Request().Context(), level, message,
		slog.Int("status", code),
		slog.String("error", detail),
		slog.String("path", c.Path()),
		slog.String("module", "rest"),
	)

	return c.JSON(code, agentdesk.ErrorResponse{
		Success: false,
		Message: message,
		Error:   detail,
	})
}

// OK wraps a successful response.
func OK(c echo.Context, message string, payload any) error {
	return respond(c, http.StatusOK, message, payload)
}

func Created(c echo.Context, message string, payload any) error {
	return respond(c, http.StatusCreated, message, payload)
}

func BadRequestMessage(c echo.Context, msg string) error {
	return fail(c, http.StatusBadRequest, msg, nil)
}

func InternalError(c echo.Context, err error) error {
	return fail(c, http.StatusInternalServerError, "Internal server error", err)
}

// Error maps usecase errors onto status codes. message describes the
// failed operation.
func Error(c echo.Context, message string, err error) error {
	var validation domain.ValidationError
	var dispatch *domain.DispatchError

	switch {
	case errors.As(err, &validation):
		return fail(c, http.StatusBadRequest, validation.Message, err)
	case errors.Is(err, domain.ErrNotFound):
		return fail(c, http.StatusNotFound, "No agent found with the provided id", err)
	case errors.Is(err, domain.ErrTerminalState):
		return fail(c, http.StatusConflict, "Agent request already failed", err)
	case errors.As(err, &dispatch):
		return fail(c, http.StatusBadGateway, "Failed to dispatch agent request", err)
	case errors.Is(err, domain.ErrDanglingOutput):
		return fail(c, http.StatusInternalServerError, "Agent output is missing", err)
	default:
		return fail(c, http.StatusInternalServerError, message, err)
	}
}
