package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that translate it into a status code.
type Kind string

const (
	KindNotFound   Kind = "NotFound"
	KindForbidden  Kind = "Forbidden"
	KindConflict   Kind = "Conflict"
	KindValidation Kind = "ValidationError"
	KindRateLimit  Kind = "TooManyRequests"
	KindInternal   Kind = "Internal"
)

// Error is the typed result of a rejected operation.
type Error struct {
	Kind    Kind
	Message string
	// Path names the offending request field, when there is one.
	Path string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match on kind, e.g. errors.Is(err, domain.ErrConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrValidation = &Error{Kind: KindValidation}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
)

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Validation(path, msg string) error {
	return &Error{Kind: KindValidation, Message: msg, Path: path}
}

func RateLimited(msg string) error {
	return &Error{Kind: KindRateLimit, Message: msg}
}

// KindOf returns the kind of err; anything that is not a *Error is Internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsError extracts the typed error, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

const (
	MsgBookingConflict = "the selected dates and guests either overlap with an existing booking or exceed the maximum guests for this venue"
	MsgListingEnded    = "This listing has already ended"
	MsgInsufficient    = "you do not have enough credits to place this bid"
)
