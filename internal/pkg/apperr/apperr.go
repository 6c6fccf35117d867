package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error classification sent to clients.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindUpstreamTransient   Kind = "upstream_transient_error"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamPermanent   Kind = "upstream_permanent_error"
	KindCapacityExceeded    Kind = "capacity_exceeded"
	KindCancelled           Kind = "cancelled"
	KindInternal            Kind = "internal_error"
	KindNotFound            Kind = "not_found"
)

// Error carries a sanitized client-facing message plus the wrapped cause.
// The cause is for logs only and must never be serialized to the client.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is worth retrying: upstream timeouts,
// 5xx-equivalents, rate-limit signals and open-breaker rejections.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindUpstreamTransient, KindUpstreamUnavailable:
		return true
	}
	return false
}

// ClientMessage returns the sanitized message safe for the client channel.
func ClientMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}
