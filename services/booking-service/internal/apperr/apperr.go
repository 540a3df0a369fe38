// Package apperr defines the typed rejections returned by the booking core.
// Every rejection carries a category code and a stable reason string so
// clients can render a specific message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeSlotUnavailable   Code = "slot_unavailable"
	CodeInvalidTransition Code = "invalid_transition"
	CodeConflict          Code = "conflict"
	CodeNotFound          Code = "not_found"
	CodeForbidden         Code = "forbidden"
)

const (
	ReasonRequired        = "reason_required"
	ReasonMalformed       = "malformed_request"
	ReasonInvalidSchedule = "invalid_schedule"
	ReasonNoActiveRule    = "no_active_rule"
	ReasonSlotNotOffered  = "slot_not_published"
	ReasonSlotTaken       = "slot_taken"
	ReasonPendingExists   = "pending_request_exists"
	ReasonNotParty        = "not_a_party"
	ReasonProviderOnly    = "provider_only"
	ReasonSystemOnly      = "system_only"
	ReasonTerminal        = "terminal_state"
	ReasonNotAllowed      = "transition_not_allowed"
	ReasonRole            = "role_not_allowed"
	ReasonStaleVersion    = "stale_version"
	ReasonConcurrent      = "concurrent_update"
	ReasonIdempotencyKey  = "idempotency_key_reused"
)

type Error struct {
	Code    Code
	Reason  string
	Message string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Message)
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, apperr.ErrConflict).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrSlotUnavailable   = &Error{Code: CodeSlotUnavailable}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrForbidden         = &Error{Code: CodeForbidden}
)

func New(code Code, reason, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Validation(reason, format string, args ...any) *Error {
	return New(CodeValidation, reason, format, args...)
}

func SlotUnavailable(reason, format string, args ...any) *Error {
	return New(CodeSlotUnavailable, reason, format, args...)
}

func InvalidTransition(reason, format string, args ...any) *Error {
	return New(CodeInvalidTransition, reason, format, args...)
}

func Conflict(reason, format string, args ...any) *Error {
	return New(CodeConflict, reason, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, "", format, args...)
}

func Forbidden(reason, format string, args ...any) *Error {
	return New(CodeForbidden, reason, format, args...)
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSlotUnavailable, CodeConflict:
		return http.StatusConflict
	case CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
