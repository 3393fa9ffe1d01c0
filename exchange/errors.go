package exchange

import (
	"errors"
	"fmt"
)

// ErrUnknownOrder is the sentinel cause for an adapter reporting that an
// order ID it was asked to act on doesn't exist on the exchange (Binance
// code -2011 and equivalents). Cancel is idempotent with respect to this
// error: the caller treats it as already-cancelled, never as a failure.
var ErrUnknownOrder = errors.New("exchange: unknown order")

// Kind classifies an exchange error so the caller (never the adapter
// itself) can decide whether to retry.
type Kind string

const (
	// KindTransient covers HTTP 429, 5xx, and network timeouts — safe to
	// retry at the caller's discretion.
	KindTransient Kind = "transient"
	// KindPermanent covers 4xx responses other than 429 — the action
	// should be aborted and journalled, not retried.
	KindPermanent Kind = "permanent"
)

// Error wraps every adapter failure in a uniform shape carrying the
// original HTTP status when available.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Msg        string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("exchange: %s (status %d): %v", e.Msg, e.HTTPStatus, e.Cause)
	}
	return fmt.Sprintf("exchange: %s (status %d)", e.Msg, e.HTTPStatus)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the error kind is transient.
func (e *Error) IsRetryable() bool { return e.Kind == KindTransient }

// ClassifyHTTPStatus derives a Kind from an HTTP status code per spec
// §4.3/§7: 429 and 5xx are transient, other 4xx are permanent.
func ClassifyHTTPStatus(status int) Kind {
	if status == 429 || status >= 500 {
		return KindTransient
	}
	return KindPermanent
}

// NewError constructs an Error, classifying by HTTP status.
func NewError(status int, msg string, cause error) *Error {
	return &Error{
		Kind:       ClassifyHTTPStatus(status),
		HTTPStatus: status,
		Msg:        msg,
		Cause:      cause,
	}
}

// NewTransientError builds a transient error without an HTTP status, for
// network timeouts and similar conditions.
func NewTransientError(msg string, cause error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Cause: cause}
}
