// Package apperr classifies request failures and renders them as
// {"error": message} JSON bodies.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Kind int

const (
	Unexpected Kind = iota
	Unauthenticated
	Forbidden
	ValidationFailure
	StoreFailure
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case ValidationFailure:
		return "validation_failure"
	case StoreFailure:
		return "store_failure"
	default:
		return "unexpected"
	}
}

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case ValidationFailure, StoreFailure:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind carried by err, Unexpected when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}

// Write renders err as {"error": ...}. Unexpected errors hide their message.
func Write(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	msg := err.Error()
	if kind == Unexpected {
		msg = "internal server error"
	}
	WriteJSON(w, kind.HTTPStatus(), map[string]string{"error": msg})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
