// Package apperr defines the error kinds surfaced at the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error and decides its HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindNotAuthorized
	KindNotAuthenticated
	KindRequest
	KindJwt
	KindConfig
	KindTransport
)

var kindNames = map[Kind]string{
	KindInternal:         "internal",
	KindValidation:       "validation",
	KindNotFound:         "not_found",
	KindNotAuthorized:    "not_authorized",
	KindNotAuthenticated: "not_authenticated",
	KindRequest:          "request",
	KindJwt:              "jwt",
	KindConfig:           "config",
	KindTransport:        "transport",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindJwt:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindRequest:
		return http.StatusBadRequest
	case KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind plus the details rendered as {"errors": Details}.
type Error struct {
	Kind    Kind
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.NotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Details == nil && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	Validation       = &Error{Kind: KindValidation}
	NotFound         = &Error{Kind: KindNotFound}
	NotAuthorized    = &Error{Kind: KindNotAuthorized}
	NotAuthenticated = &Error{Kind: KindNotAuthenticated}
	Request          = &Error{Kind: KindRequest}
	Jwt              = &Error{Kind: KindJwt}
	Config           = &Error{Kind: KindConfig}
)

// NewValidation returns a validation error with per-field messages.
func NewValidation(fields map[string][]string) *Error {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &Error{Kind: KindValidation, Details: details}
}

// FieldError is a shortcut for a validation error on a single field.
func FieldError(field, msg string) *Error {
	return NewValidation(map[string][]string{field: {msg}})
}

func NewNotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Details: map[string]any{entity: id}}
}

func NewNotAuthorized(reason string) *Error {
	return &Error{Kind: KindNotAuthorized, Details: map[string]any{"access": reason}}
}

func NewNotAuthenticated(reason string) *Error {
	return &Error{Kind: KindNotAuthenticated, Details: map[string]any{"access": reason}}
}

// NewUnsupportedTicketType is raised when no pipe handles the ticket type.
func NewUnsupportedTicketType(typ string) *Error {
	return &Error{Kind: KindRequest, Details: map[string]any{"type": []string{fmt.Sprintf("unsupported ticket type %q", typ)}}}
}

func NewJwt(err error) *Error {
	return &Error{Kind: KindJwt, Details: map[string]any{"jwt": err.Error()}, Err: err}
}

func NewConfig(format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: KindConfig, Details: map[string]any{"config": msg}, Err: errors.New(msg)}
}

// As unwraps err into an *Error when possible.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status picks the HTTP status for any error; unknown errors are 500.
func Status(err error) int {
	if e, ok := As(err); ok {
		return e.Kind.Status()
	}
	return http.StatusInternalServerError
}

// Body renders err as the JSON payload of an error response.
func Body(err error) map[string]any {
	if e, ok := As(err); ok && e.Details != nil {
		return map[string]any{"errors": e.Details}
	}
	return map[string]any{"errors": map[string]any{"message": err.Error()}}
}
