// Package errs defines the arena's error taxonomy. Settlement and scheduler
// preconditions fail with one of these kinds so callers can map failures to
// HTTP statuses and agents get an attributable rejection message instead of a
// session-wide fault.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	// KindValidation: malformed input (self-trade, non-positive quantity or price).
	KindValidation
	// KindNotFound: unknown session/round/agent/good/proposal.
	KindNotFound
	// KindConflict: wrong lifecycle state or wrong acting party.
	KindConflict
	// KindInsufficient: seller lacks goods or buyer lacks cash.
	KindInsufficient
	// KindUnauthorized: admin trigger without a valid API key.
	KindUnauthorized
)

type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Insufficientf(format string, args ...any) error {
	return &Error{Kind: KindInsufficient, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
func IsInsufficient(err error) bool { return KindOf(err) == KindInsufficient }

// HTTPStatus maps an error kind to the status the read/admin facade returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInsufficient:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
