package alarms

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/oshokin/warehouse-alarms/internal/logger"
)

// APIError is a structured error response.
type APIError struct {
	// Status is the HTTP status code.
	Status int `json:"-"`
	// Code is a stable machine-readable code.
	Code string `json:"code"`
	// Message is the human-readable message.
	Message string `json:"message"`
	// Details carries the underlying cause.
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newBadRequestError(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

func newNotFoundError(resource, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func newConflictError(message string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func newBadGatewayError(message string, cause error) *APIError {
	return &APIError{
		Status:  http.StatusBadGateway,
		Code:    "BAD_GATEWAY",
		Message: message,
		Details: cause.Error(),
	}
}

func newInternalError(message string, cause error) *APIError {
	err := &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}

	return err
}

// errorResponse is the failure envelope.
type errorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// ErrorHandler renders every error as a failure envelope.
func ErrorHandler(err error, c echo.Context) {
	var (
		apiErr  *APIError
		httpErr *echo.HTTPError
	)

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = newInternalError("unexpected error", err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logger.ErrorKV(c.Request().Context(), "request failed",
			"path", c.Path(),
			"code", apiErr.Code,
			"error", err,
		)
	}

	if c.Response().Committed {
		return
	}

	_ = c.JSON(apiErr.Status, errorResponse{Success: false, Error: apiErr})
}
