package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnavailableError indicates a required collaborator (database, model
	// provider) could not be reached
	UnavailableError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string    { return e.Message }
func (e *ValidationError) Error() string  { return e.Message }
func (e *UnavailableError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int    { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int  { return http.StatusBadRequest }
func (e *UnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
