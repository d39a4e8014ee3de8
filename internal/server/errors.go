// Package server provides the HTTP REST API for the script pipeline.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/natalia/scriptforge/internal/pipeline"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing or invalid API token
type ErrUnauthorized struct{}

func (e *ErrUnauthorized) Error() string {
	return "missing or invalid token"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation    *ErrValidation
		unauthorized  *ErrUnauthorized
		notFound      *pipeline.NotFoundError
		forbidden     *pipeline.ForbiddenError
		conflict      *pipeline.ConflictError
		notFailed     *pipeline.NotFailedError
		retryLimit    *pipeline.RetryLimitExceededError
		revisionLimit *pipeline.RevisionLimitExceededError
		quota         *pipeline.QuotaExceededError
		queueFull     *pipeline.QueueFullError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &conflict), errors.As(err, &notFailed),
		errors.As(err, &retryLimit), errors.As(err, &revisionLimit):
		return http.StatusConflict
	case errors.As(err, &quota):
		return http.StatusTooManyRequests
	case errors.As(err, &queueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
