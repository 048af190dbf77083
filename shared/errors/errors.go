package errors

import (
	"errors"
	"net/http"
)

// Kinds reported to clients in the error payload.
const (
	KindNotFound          = "not_found"
	KindInvalidRequest    = "invalid_request"
	KindUnauthorized      = "unauthorized"
	KindForbidden         = "forbidden"
	KindConflict          = "conflict"
	KindCeilingReached    = "ceiling_reached"
	KindTurnInProgress    = "turn_in_progress"
	KindTurnFailed        = "turn_failed"
	KindExternalRejection = "external_rejection"
	KindPayloadTooLarge   = "payload_too_large"
	KindUnavailable       = "unavailable"
	KindInternal          = "internal"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
	// Kind is optional, derived from StatusCode when empty
	Kind string
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// ErrorKind returns explicit Kind or the one implied by the status code.
func (e *ErrorWithStatusCode) ErrorKind() string {
	if e.Kind != "" {
		return e.Kind
	}
	return kindForStatus(e.StatusCode)
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindInvalidRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusConflict:
		return KindConflict
	case http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable
	}
	return KindInternal
}

func NotFound(message string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: message, StatusCode: http.StatusNotFound}
}

func BadRequest(message string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: message, StatusCode: http.StatusBadRequest}
}

func Conflict(message string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: message, StatusCode: http.StatusConflict}
}

// As unwraps err looking for *ErrorWithStatusCode.
func As(err error) (*ErrorWithStatusCode, bool) {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	e, ok := As(err)
	return ok && e.StatusCode == http.StatusNotFound
}

// KindOf returns the client facing kind for any error, KindInternal for plain errors.
func KindOf(err error) string {
	if e, ok := As(err); ok {
		return e.ErrorKind()
	}
	return KindInternal
}
