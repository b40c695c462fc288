package domain

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// KindValidation rejects caller input before any network call is made.
	KindValidation Kind = "Validation"
	// KindConfiguration is fatal until the operator fixes the configuration.
	KindConfiguration Kind = "Configuration"
	// KindConnection means the node could not be reached. Callers may retry.
	KindConnection Kind = "Connection"
	// KindNoAccount means the node has no registered accounts.
	KindNoAccount Kind = "NoAccount"
	// KindTransaction is an on-chain failure after submission. Never retried
	// by this package: resubmitting can deliver the same letter twice.
	KindTransaction Kind = "Transaction"
	// KindDecode means a payload could not be interpreted as letter text.
	KindDecode Kind = "Decode"
)

// Error is the structured error returned by every letterbox operation.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func WrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
