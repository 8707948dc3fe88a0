package resource

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getmockd/restwire/pkg/event"
	"github.com/getmockd/restwire/pkg/persistence"
	"github.com/getmockd/restwire/pkg/query"
)

// NotFoundError is returned when an entity is not visible to the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource %q item %q not found", e.Resource, e.ID)
}

// StatusCode returns the HTTP status code for this error.
func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *NotFoundError) Hint() string {
	return fmt.Sprintf("Check that item ID %q exists in resource %q. Use fetch without an ID to list available items.", e.ID, e.Resource)
}

// ValidationError is returned when input validation fails.
type ValidationError struct {
	Message string
	Field   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return e.Message
}

// StatusCode returns the HTTP status code for this error.
func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *ValidationError) Hint() string {
	if e.Field != "" {
		return fmt.Sprintf("Check the value of %q.", e.Field)
	}
	return "Check your request body format and required fields."
}

// StatusCodeError is an interface for errors that have an HTTP status code.
type StatusCodeError interface {
	error
	StatusCode() int
}

// HintError is an interface for errors that provide resolution hints.
type HintError interface {
	error
	Hint() string
}

// ErrorResponse is the JSON envelope for a failed operation.
type ErrorResponse struct {
	Error      string `json:"error"`
	Resource   string `json:"resource,omitempty"`
	ID         string `json:"id,omitempty"`
	Field      string `json:"field,omitempty"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Hint       string `json:"hint,omitempty"`
}

// ToErrorResponse converts an error to an ErrorResponse.
func ToErrorResponse(err error) *ErrorResponse {
	resp := &ErrorResponse{}

	var (
		notFound   *NotFoundError
		validation *ValidationError
		conflict   *persistence.ConflictError
		missing    *persistence.NotFoundError
		hint       HintError
		status     StatusCodeError
	)

	switch {
	case errors.As(err, &notFound):
		resp.Error = "resource not found"
		resp.Resource = notFound.Resource
		resp.ID = notFound.ID
		resp.StatusCode = notFound.StatusCode()
		resp.Hint = notFound.Hint()
	case errors.As(err, &validation):
		resp.Error = "invalid request"
		resp.Detail = validation.Message
		resp.Field = validation.Field
		resp.StatusCode = validation.StatusCode()
		resp.Hint = validation.Hint()
	case errors.As(err, &conflict):
		resp.Error = "resource already exists"
		resp.ID = conflict.ID
		resp.Detail = conflict.Error()
		resp.StatusCode = http.StatusConflict
		resp.Hint = conflict.Hint()
	case errors.As(err, &missing):
		resp.Error = "resource not found"
		resp.ID = missing.ID
		resp.Detail = missing.Error()
		resp.StatusCode = http.StatusNotFound
		resp.Hint = missing.Hint()
	case errors.Is(err, query.ErrUnauthorized):
		resp.Error = "unauthorized"
		resp.Detail = err.Error()
		resp.StatusCode = http.StatusUnauthorized
		resp.Hint = "Pass a valid bearer token issued by the configured authorization server."
	case errors.Is(err, query.ErrRejected), errors.Is(err, event.ErrRejected):
		resp.Error = "forbidden"
		resp.Detail = err.Error()
		resp.StatusCode = http.StatusForbidden
	default:
		resp.Error = "internal error"
		resp.Detail = err.Error()
		resp.StatusCode = http.StatusInternalServerError
		if errors.As(err, &status) {
			resp.StatusCode = status.StatusCode()
		}
		if errors.As(err, &hint) {
			resp.Hint = hint.Hint()
		}
	}

	return resp
}
