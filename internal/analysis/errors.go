package analysis

import (
	"context"
	"errors"
	"fmt"
)

// ServiceError is a failed interaction with an external service, tagged with
// the taxonomy reason that drives retry decisions.
type ServiceError struct {
	Service string // "reasoning" or "search"
	Reason  Reason
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service: %s: %v", e.Service, e.Reason, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError wraps an underlying error with its taxonomy reason.
func NewServiceError(service string, reason Reason, err error) *ServiceError {
	return &ServiceError{Service: service, Reason: reason, Err: err}
}

// ReasonOf extracts the taxonomy reason from an error chain. Context
// cancellation and deadline expiry are recognized even when unwrapped;
// anything else defaults to ServiceUnavailable.
func ReasonOf(err error) Reason {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Reason
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonServiceUnavailable
}
