// Package apperr implements the error handling design's taxonomy: every
// failure the orchestrator surfaces is classified into one of a small set of
// kinds so the HTTP and push layers can map it to a status/event without
// inspecting error strings.
package apperr

import "fmt"

type Kind string

const (
	KindAuth       Kind = "AUTH"
	KindUnavailable Kind = "UNAVAILABLE"
	KindTimeout    Kind = "TIMEOUT"
	KindProtocol   Kind = "PROTOCOL"
	KindLimit      Kind = "LIMIT"
	KindValidation Kind = "VALIDATION"
)

// Error is the concrete type every orchestrator-originated failure wraps
// itself in before crossing a component boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Auth(msg string) *Error       { return New(KindAuth, msg) }
func Unavailable(msg string) *Error { return New(KindUnavailable, msg) }
func Timeout(msg string) *Error    { return New(KindTimeout, msg) }
func Protocol(msg string) *Error   { return New(KindProtocol, msg) }
func Limit(msg string) *Error      { return New(KindLimit, msg) }
func Validation(msg string) *Error { return New(KindValidation, msg) }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindUnavailable for opaque errors so the transport
// layer always has something to map.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return KindUnavailable
	}
	return e.Kind
}
