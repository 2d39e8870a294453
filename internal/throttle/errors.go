// Package throttle defines the error taxonomy for admission decisions.
package throttle

import (
	"errors"
	"fmt"
)

// ErrInvalidRateSpec indicates a malformed rate expression. Raised at
// config-load time and treated as fatal so limiting is never silently off.
var ErrInvalidRateSpec = errors.New("invalid rate spec")

// ThrottledError is the expected rejection outcome. It carries the Decision
// of the throttle that rejected.
type ThrottledError struct {
	Decision *Decision
}

// Error implements the error interface.
func (e *ThrottledError) Error() string {
	if e == nil || e.Decision == nil {
		return "request throttled"
	}
	return fmt.Sprintf("request throttled: scope %q, retry after %s", e.Decision.Scope, e.Decision.RetryAfter)
}

// StoreUnavailableError indicates the counter store could not be reached and
// the scope's policy is fail-closed. It is never a normal rejection.
type StoreUnavailableError struct {
	Scope string
	Err   error
}

// Error implements the error interface.
func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("counter store unavailable for scope %q: %v", e.Scope, e.Err)
}

// Unwrap exposes the underlying store error.
func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// SecondaryLimitError indicates the resource-usage meter rejected even
// though the request-count throttle admitted.
type SecondaryLimitError struct {
	Scope    string
	Used     int64
	Cap      int64
	Decision *Decision
}

// Error implements the error interface.
func (e *SecondaryLimitError) Error() string {
	return fmt.Sprintf("usage budget exceeded for scope %q: %d of %d used", e.Scope, e.Used, e.Cap)
}

// IsThrottled reports whether err is a normal rejection outcome.
func IsThrottled(err error) bool {
	var throttled *ThrottledError
	var secondary *SecondaryLimitError
	return errors.As(err, &throttled) || errors.As(err, &secondary)
}
