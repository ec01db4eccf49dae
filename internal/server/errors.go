package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"buildsite/pkg/backend"
	errs "buildsite/pkg/errors"
	"buildsite/pkg/mail"
	"buildsite/pkg/validate"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// handleError is the echo error handler. Classified fetch errors keep their
// status; timeouts become 504 and other backend failures 502.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorResponse(err)

	if status == http.StatusUnauthorized && sessionToken(c) != "" {
		// the backend rejected the stored token, so the cookie is stale
		s.clearSessionCookie(c)
	}

	fields := map[string]interface{}{
		"status":     status,
		"path":       c.Request().URL.Path,
		"request_id": requestIDFrom(c),
		"error":      err.Error(),
	}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorWithFields("request error", fields)
	} else {
		s.logger.DebugWithFields("request error", fields)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to write error response")
	}
}

func errorResponse(err error) (int, errorBody) {
	var validationErr *validate.Error
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, errorBody{Error: "validation failed", Fields: validationErr.Fields}
	case errors.Is(err, mail.ErrInvalidMessage):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.As(err, &httpErr):
		return httpErr.Code, errorBody{Error: httpErrorMessage(httpErr)}
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: "authentication required"}
	}

	if classified, ok := errs.As(err); ok {
		return classifiedStatus(classified), errorBody{Error: classifiedMessage(classified)}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, errorBody{Error: "request cancelled"}
	}

	return http.StatusInternalServerError, errorBody{Error: "internal server error"}
}

func classifiedStatus(err *errs.Error) int {
	switch err.Kind {
	case errs.KindHTTPStatus:
		if err.Status >= 400 && err.Status <= 599 {
			return err.Status
		}
		return http.StatusBadGateway
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// classifiedMessage keeps backend addresses out of public responses. Only the
// backend's own error message is passed through.
func classifiedMessage(err *errs.Error) string {
	switch err.Kind {
	case errs.KindHTTPStatus:
		return err.Message
	case errs.KindTimeout:
		return "the backend did not respond in time"
	case errs.KindParseFailure:
		return "the backend returned an invalid response"
	default:
		return "the backend is unreachable"
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}
