package storefront

import (
	"errors"
	"fmt"
	"strings"

	"beat-publish-pipeline/poll"
)

var (
	ErrInvalidRequest    = errors.New("invalid upload request")
	ErrInputNotFound     = errors.New("input not found")
	ErrExtractionFailure = errors.New("short link extraction failed")
	ErrAllAttemptsFailed = errors.New("all upload attempts failed")

	// Re-exported so callers can classify failures without importing poll.
	ErrTimeoutExceeded = poll.ErrTimeoutExceeded
	ErrActionFailed    = poll.ErrActionFailed

	errStepSkipped = errors.New("step skipped")
)

// AttemptsError is returned once the attempt budget is exhausted. It keeps
// every attempt's report for diagnostics.
type AttemptsError struct {
	Reports []Report
	Last    error
}

func (e *AttemptsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s after %d attempt(s)", ErrAllAttemptsFailed, len(e.Reports))
	if e.Last != nil {
		fmt.Fprintf(&b, ": %v", e.Last)
	}
	return b.String()
}

func (e *AttemptsError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrAllAttemptsFailed}
	}
	return []error{ErrAllAttemptsFailed, e.Last}
}
