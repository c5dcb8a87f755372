package model

import (
	"errors"
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code from the fetch service so retry logic
// can inspect it.
type HTTPError struct {
	StatusCode int
	URL        string
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d from %s: %v", e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Session-level refusal conditions. Only these surface as an unsuccessful
// session outcome; per-record and per-site failures are absorbed into
// session statistics.
var (
	ErrKillSwitchActive = errors.New("kill switch active")
	ErrQualityGate      = errors.New("rolling quality below threshold")
	ErrErrorBudget      = errors.New("session error budget exhausted")
	ErrSessionRunning   = errors.New("a session is already running")
)
