package taler

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureInvalid reports a webhook body whose signature did not
	// verify against the configured secret.
	ErrSignatureInvalid = errors.New("taler: webhook signature invalid")
	// ErrMalformedPayload reports a webhook body that verified but could not
	// be decoded into an event.
	ErrMalformedPayload = errors.New("taler: malformed webhook payload")
)

// TransportError wraps a network-level failure (DNS, refused connection,
// timeout, context cancellation) while talking to the merchant backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("taler: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError reports an unexpected HTTP status from the merchant backend.
// The response body is retained for caller diagnostics.
type BackendError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("taler: %s: backend returned status %d", e.Op, e.Status)
}

// MalformedResponseError reports a 2xx response whose body could not be
// decoded or lacks required fields.
type MalformedResponseError struct {
	Op     string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("taler: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("taler: %s: %s", e.Op, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
