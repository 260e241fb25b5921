package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates the gateway client has no base URL or key.
	ErrNotConfigured = errors.New("gateway: messaging not configured")
	// ErrInvalidBaseURL indicates a malformed or non-routable gateway URL.
	ErrInvalidBaseURL = errors.New("gateway: invalid base url")
	// ErrUnauthorized indicates every auth variant against every base URL was rejected.
	ErrUnauthorized = errors.New("gateway: unauthorized by upstream")
	// ErrNotFound indicates the upstream reported the resource as absent.
	ErrNotFound = errors.New("gateway: resource not found")
	// ErrUnreachable indicates repeated 502/504 responses from the upstream.
	ErrUnreachable = errors.New("gateway: upstream unreachable")
	// ErrRecipientRejected indicates the upstream refused the recipient address format.
	ErrRecipientRejected = errors.New("gateway: recipient format rejected")
	// ErrExhausted indicates all candidate request shapes failed without a
	// more specific classification.
	ErrExhausted = errors.New("gateway: all request variants failed")
)

// Attempt records one candidate request for diagnostics. URLs and auth styles
// are recorded; secret values never are.
type Attempt struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Auth   string `json:"auth"`
	Status int    `json:"status"`
	Err    string `json:"error,omitempty"`
}

// VariantError carries the error classification plus the audit trail of
// every attempted request shape.
type VariantError struct {
	Class    error
	Hint     string
	Attempts []Attempt
}

func (e *VariantError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%d attempts)", e.Class, e.Hint, len(e.Attempts))
	}
	return fmt.Sprintf("%s (%d attempts)", e.Class, len(e.Attempts))
}

func (e *VariantError) Unwrap() error { return e.Class }

func variantErr(class error, hint string, attempts []Attempt) *VariantError {
	return &VariantError{Class: class, Hint: hint, Attempts: attempts}
}
