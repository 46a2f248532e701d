package github

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for 404 responses
	ErrNotFound = errors.New("not found")
	// ErrAuthentication is returned for 401 responses; it is fatal for a run
	ErrAuthentication = errors.New("authentication failed: invalid GitHub token")
	// ErrEmptyRepository is returned when a repository has no commits
	ErrEmptyRepository = errors.New("repository is empty")
	// ErrCircuitOpen is returned while the API circuit breaker is open
	ErrCircuitOpen = errors.New("GitHub API circuit breaker is open")
)

// AccessError is a non-transient API failure other than 401/404
type AccessError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *AccessError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}
