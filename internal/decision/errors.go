package decision

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError covers failures before an HTTP status was received:
// dial, DNS, TLS, timeouts and broken connections.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("decision transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the exchange ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ProtocolError is a reply with a non-2xx status.
type ProtocolError struct {
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("decision service error %d: %s", e.StatusCode, e.Body)
}

// PanicError wraps a value recovered from the request worker.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("decision worker panic: %v", e.Value)
}

// Classify maps an error to a short label for logs and metrics.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var transport *TransportError
	var protocol *ProtocolError
	var panicErr *PanicError
	switch {
	case errors.As(err, &transport):
		if transport.Timeout() {
			return "timeout"
		}
		return "transport"
	case errors.As(err, &protocol):
		return "protocol"
	case errors.As(err, &panicErr):
		return "panic"
	default:
		return "other"
	}
}
