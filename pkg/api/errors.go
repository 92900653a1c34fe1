package api

import (
	"errors"
)

// Sentinel errors, following the teacher's persistence.ErrWorkflowNotFound /
// persistence.ErrInstanceNotFound convention.
var (
	// ErrExpressionNotFound is returned by Storage.Load when fei is unknown.
	ErrExpressionNotFound = errors.New("flowexpr: expression not found")

	// ErrNoParent is returned when a single-slash-prefixed variable name
	// makes a lookup, set or unset delegate to the parent of a node that has
	// no parent.
	ErrNoParent = errors.New("flowexpr: no parent in chain")

	// ErrAliasCycle is returned by IterativeVarLookup when alias chasing
	// exceeds the bounded hop count (SPEC_FULL.md §8).
	ErrAliasCycle = errors.New("flowexpr: variable alias cycle detected")
)

// timeoutStackMarker is the synthetic stack trace spec.md §9 mandates for
// TimeoutError: it marks a flow-level timeout, not a crash, and must not be
// replaced with a real captured stack.
var timeoutStackMarker = []string{"---"}

// TimeoutError is the synthetic error published on the errors channel when
// an on_timeout handler literal is "error" (spec.md §4.6, §7).
type TimeoutError struct {
	Fei     FEI
	Timeout string // the original `timeout` attribute, used verbatim as message
}

func (e *TimeoutError) Error() string {
	return e.Timeout
}

// StackTrace returns the fixed ["---"] marker, spec.md §9.
func (e *TimeoutError) StackTrace() []string {
	return timeoutStackMarker
}

// IsTimeoutError reports whether err is (or wraps) a *TimeoutError.
func IsTimeoutError(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
