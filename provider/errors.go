package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a transport failure so callers can map it to a stable
// outward status without parsing error strings.
type Kind string

const (
	// KindUnreachable means the backend could not be reached at all.
	KindUnreachable Kind = "unreachable"
	// KindTimeout means the backend accepted the request but did not
	// answer within the deadline.
	KindTimeout Kind = "timeout"
	// KindBadResponse means the backend answered with an error status or
	// a payload that could not be decoded.
	KindBadResponse Kind = "bad_response"
)

// TransportError wraps a backend failure with its classified kind. These
// errors are never retried by the generation engine.
type TransportError struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model backend %s (%s): %v", e.Kind, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(kind Kind, endpoint string, err error) *TransportError {
	return &TransportError{Kind: kind, Endpoint: endpoint, Err: err}
}

// ClassifyDialError separates timeouts from plain connection failures on
// the error returned by an HTTP round trip.
func ClassifyDialError(endpoint string, err error) *TransportError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransportError(KindTimeout, endpoint, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransportError(KindTimeout, endpoint, err)
	}
	return NewTransportError(KindUnreachable, endpoint, err)
}
