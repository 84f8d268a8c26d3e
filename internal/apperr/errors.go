// Package apperr defines the error kinds returned by the auth and order services.
// Callers determine the kind with errors.Is against the sentinels below or with KindOf,
// never by matching message text.
package apperr

import (
	"errors"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindRateLimited       Kind = "rate_limited"
	KindNoActiveChallenge Kind = "no_active_challenge"
	KindCodeMismatch      Kind = "code_mismatch"
	KindAttemptsExhausted Kind = "attempts_exhausted"
	KindMalformed         Kind = "malformed"
	KindExpired           Kind = "expired"
	KindRevoked           Kind = "revoked"
	KindWrongKind         Kind = "wrong_kind"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindForbidden         Kind = "forbidden"
	KindTransientFailure  Kind = "transient_failure"
	KindInternal          Kind = "internal"
)

// Error is a typed failure carrying its Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so any error of a kind
// matches that kind's sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels, one per kind.
var (
	ErrValidation        = &Error{Kind: KindValidation, Msg: "invalid input"}
	ErrRateLimited       = &Error{Kind: KindRateLimited, Msg: "rate limit exceeded"}
	ErrNoActiveChallenge = &Error{Kind: KindNoActiveChallenge, Msg: "no active otp challenge"}
	ErrCodeMismatch      = &Error{Kind: KindCodeMismatch, Msg: "otp code mismatch"}
	ErrAttemptsExhausted = &Error{Kind: KindAttemptsExhausted, Msg: "otp attempts exhausted"}
	ErrMalformed         = &Error{Kind: KindMalformed, Msg: "malformed token"}
	ErrExpired           = &Error{Kind: KindExpired, Msg: "token expired"}
	ErrRevoked           = &Error{Kind: KindRevoked, Msg: "token revoked"}
	ErrWrongKind         = &Error{Kind: KindWrongKind, Msg: "wrong token kind"}
	ErrNotFound          = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Msg: "invalid status transition"}
	ErrForbidden         = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrTransientFailure  = &Error{Kind: KindTransientFailure, Msg: "transient failure"}
)

// New returns an error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err. Errors that carry no kind are KindInternal; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the caller may retry the request that produced err.
// Only delivery-channel transient failures qualify.
func Retryable(err error) bool {
	return KindOf(err) == KindTransientFailure
}
