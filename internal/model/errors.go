package model

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for routing to the right notification.
type Kind string

const (
	KindConfig         Kind = "config"
	KindSessionExpired Kind = "session_expired"
	KindAuth           Kind = "auth"
	KindNetwork        Kind = "network"
	KindUnknown        Kind = "unknown"
)

// ErrSessionExpired is returned when no usable credential could be obtained.
var ErrSessionExpired = errors.New("session expired")

// Error is a classified failure from one of the I/O boundaries.
type Error struct {
	Kind   Kind
	Op     string
	Status int    // HTTP status, if any
	Body   string // raw response body kept for diagnostics
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + string(e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSessionExpired) match any session-expired Error.
func (e *Error) Is(target error) bool {
	return target == ErrSessionExpired && e.Kind == KindSessionExpired
}

// NewError builds a classified error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err. Unclassified errors are unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrSessionExpired) {
		return KindSessionExpired
	}
	return KindUnknown
}

// Hint is the user-facing remediation text for a kind.
func Hint(k Kind) string {
	switch k {
	case KindConfig:
		return "Check the configuration file and environment variables."
	case KindSessionExpired:
		return "The portal session has expired. Run hrwatch --login to sign in again."
	case KindAuth:
		return "The portal rejected the saved credentials. Re-authenticate with hrwatch --login."
	case KindNetwork:
		return "The portal could not be reached. Check network connectivity and try again."
	default:
		return "An unexpected error occurred. See the logs for details."
	}
}
