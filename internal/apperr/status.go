package apperr

import (
	"errors"
	"net/http"
)

// HTTPStatus maps engine errors to HTTP status codes.
func HTTPStatus(err error) int {
	var parseErr *ParseError
	var validation *ValidationError
	var accessDenied *AuthorizationError
	var notFound *NotFoundError

	switch {
	case errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.As(err, &validation):
		if validation.Status != 0 {
			return validation.Status
		}
		return http.StatusBadRequest
	case errors.As(err, &accessDenied):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Type names the error kind as reported by describe.
func Type(err error) string {
	var parseErr *ParseError
	var validation *ValidationError
	var accessDenied *AuthorizationError
	var notFound *NotFoundError
	var execution *ExecutionError

	switch {
	case errors.As(err, &parseErr):
		return "ParseError"
	case errors.As(err, &validation):
		return "ValidationError"
	case errors.As(err, &accessDenied):
		return "AuthorizationError"
	case errors.As(err, &notFound):
		return "NotFoundError"
	case errors.As(err, &execution):
		return "ExecutionError"
	default:
		return "Error"
	}
}
