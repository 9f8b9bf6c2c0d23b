package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies an upstream call failure so callers can tell
// "feature unavailable" apart from "transient failure worth a retry".
type ErrorKind string

const (
	KindTimeout     ErrorKind = "TIMEOUT"
	KindNotFound    ErrorKind = "NOT_FOUND"
	KindRateLimited ErrorKind = "RATE_LIMITED"
	KindParse       ErrorKind = "PARSE_ERROR"
	KindUpstream    ErrorKind = "UPSTREAM"
)

// CallError is the typed failure returned by every upstream client.
type CallError struct {
	Service string
	Kind    ErrorKind
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// callErr wraps err with the service name and a classified kind.
func callErr(service string, kind ErrorKind, err error) *CallError {
	return &CallError{Service: service, Kind: kind, Err: err}
}

// classifyTransport maps a transport-level error to a kind.
func classifyTransport(service string, err error) *CallError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return callErr(service, KindTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return callErr(service, KindTimeout, err)
	default:
		return callErr(service, KindUpstream, err)
	}
}

// classifyStatus maps a non-2xx HTTP status to a kind.
func classifyStatus(service string, status int) *CallError {
	err := fmt.Errorf("HTTP %d", status)
	switch status {
	case 404:
		return callErr(service, KindNotFound, err)
	case 429:
		return callErr(service, KindRateLimited, err)
	default:
		return callErr(service, KindUpstream, err)
	}
}

// ErrKind extracts the kind from an error chain, or "" if it is not a
// CallError.
func ErrKind(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsTimeout reports whether err is a classified timeout.
func IsTimeout(err error) bool { return ErrKind(err) == KindTimeout }

// IsNotFound reports whether err is a classified not-found.
func IsNotFound(err error) bool { return ErrKind(err) == KindNotFound }
