// Package apperr defines the error taxonomy shared by the API adapter and the stores.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation" // client-detected, never reaches the network
	KindAuth       Kind = "auth"       // bad credentials, expired or invalid token (401)
	KindPermission Kind = "permission" // role or ownership denial (403, or local)
	KindNotFound   Kind = "not_found"  // 404
	KindConflict   Kind = "conflict"   // 409
	KindNetwork    Kind = "network"    // transport failure
	KindFetch      Kind = "fetch"      // any other server failure, malformed payloads
)

var (
	ErrValidation = &Error{Kind: KindValidation, Message: "validation error"}
	ErrAuth       = &Error{Kind: KindAuth, Message: "authentication error"}
	ErrPermission = &Error{Kind: KindPermission, Message: "permission denied"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNetwork    = &Error{Kind: KindNetwork, Message: "network error"}
	ErrFetch      = &Error{Kind: KindFetch, Message: "request failed"}
)

// Error carries a human-readable message that is surfaced verbatim.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status when the error came from a response.
	Status int
	// Op names the store operation, e.g. "tasks.list".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, so errors.Is(err, apperr.ErrNotFound) works for any not-found error.
// Network errors are a subset of fetch errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindNetwork && t.Kind == KindFetch
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Permission(format string, args ...any) *Error {
	return &Error{Kind: KindPermission, Message: fmt.Sprintf(format, args...)}
}

// KindForStatus maps an HTTP status to the taxonomy.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindPermission
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindFetch
	}
}

// KindOf returns the kind of err, or KindFetch for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFetch
}

// Message is the text stores record as lastError.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// WithOp returns a copy of err tagged with op, or wraps a foreign error as a fetch error.
func WithOp(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Op == "" {
			cp.Op = op
		}
		return &cp
	}
	return &Error{Kind: KindFetch, Message: err.Error(), Op: op, Err: err}
}

// Remap changes the kind of err when it currently has kind from. Used where an operation
// reports a server answer under a different category, e.g. register's duplicate email.
func Remap(err error, from, to Kind) error {
	var e *Error
	if !errors.As(err, &e) || e.Kind != from {
		return err
	}
	cp := *e
	cp.Kind = to
	return &cp
}
