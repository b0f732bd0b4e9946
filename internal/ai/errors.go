package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when a provider lacks a capability or credentials.
	ErrUnavailable = errors.New("ai capability unavailable")
	// ErrBackendUnavailable marks a backend that kept failing after all retries.
	ErrBackendUnavailable = errors.New("ai backend unavailable")
	// ErrEmptyResponse is returned when a backend answers with no content.
	ErrEmptyResponse = errors.New("empty ai response")
)

type BackendError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}
