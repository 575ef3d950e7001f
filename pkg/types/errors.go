package types

import "fmt"

// The pipeline error taxonomy. Every error crossing a component boundary
// is one of these so callers can branch with errors.As:
//
//	ValidationError  - malformed or missing required data; not retryable
//	DurabilityError  - local flush/store failure; fatal for the session
//	ComputationError - a single derived metric could not be computed;
//	                   the metric is omitted, the summary survives
//	NetworkError     - transient upload failure; retryable by the user
//	AuthError        - upload rejected; requires re-authentication
//	PermissionError  - required sensor/location access unavailable

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

type DurabilityError struct {
	Op  string
	Err error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durability: %s: %v", e.Op, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

type ComputationError struct {
	Metric string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation: %s unavailable: %s", e.Metric, e.Reason)
}

type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network: %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable is true for every NetworkError; the submission machine keeps
// the prepared payload so the user can re-submit.
func (e *NetworkError) Retryable() bool { return true }

type AuthError struct {
	StatusCode int
	Reason     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s (status %d)", e.Reason, e.StatusCode)
}

type PermissionError struct {
	Scope string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission: %s access unavailable", e.Scope)
}

// InvalidTransitionError reports a lifecycle action attempted from a state
// that does not allow it.
type InvalidTransitionError struct {
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s from %q", e.Action, e.From)
}
