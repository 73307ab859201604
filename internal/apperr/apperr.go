// Package apperr defines the coded error type shared by every layer of the
// service and its mapping onto HTTP responses.
//
// Codes target automated handling (status mapping, metrics labels). Msg is the
// client-safe message; Op and Err carry operator context and are never written
// to a response body.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Error codes.
const (
	EUnauthenticated     = "unauthenticated"
	EInvalidCredentials  = "invalid_credentials"
	EInvalidToken        = "invalid_token"
	ETenantIsolation     = "tenant_isolation"
	EInsufficientRole    = "insufficient_role"
	EModuleNotEnabled    = "module_not_enabled"
	ENotFound            = "not_found"
	EInvalid             = "invalid"
	EConflict            = "conflict"
	ETooManyRequests     = "too_many_requests"
	EInternal            = "internal"
	internalErrorMessage = "internal server error"
)

// Error is the error type returned across package boundaries.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		fmt.Fprintf(&b, "<%s>", e.Code)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Msg == "" || t.Msg == e.Msg)
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated    = &Error{Code: EUnauthenticated}
	ErrInvalidCredentials = &Error{Code: EInvalidCredentials}
	ErrInvalidToken       = &Error{Code: EInvalidToken}
	ErrTenantIsolation    = &Error{Code: ETenantIsolation}
	ErrNotFound           = &Error{Code: ENotFound}
	ErrConflict           = &Error{Code: EConflict}
	ErrInvalid            = &Error{Code: EInvalid}
	ErrTooManyRequests    = &Error{Code: ETooManyRequests}
)

// Code returns the code of the first *Error in err's chain, or EInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return EInternal
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Code == EInternal || e.Code == "" {
		return internalErrorMessage
	}
	if e.Msg != "" {
		return e.Msg
	}
	return defaultMessages[e.Code]
}

var defaultMessages = map[string]string{
	EUnauthenticated:    "authentication required",
	EInvalidCredentials: "invalid credentials",
	EInvalidToken:       "invalid or expired token",
	ETenantIsolation:    "forbidden",
	EInsufficientRole:   "insufficient role",
	EModuleNotEnabled:   "module not enabled",
	ENotFound:           "not found",
	EInvalid:            "invalid request",
	EConflict:           "conflict",
	ETooManyRequests:    "too many requests",
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case EUnauthenticated, EInvalidCredentials:
		return http.StatusUnauthorized
	case EInvalidToken, ETenantIsolation, EInsufficientRole, EModuleNotEnabled:
		return http.StatusForbidden
	case ENotFound:
		return http.StatusNotFound
	case EInvalid:
		return http.StatusBadRequest
	case EConflict:
		return http.StatusConflict
	case ETooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape of every error response.
type Body struct {
	Message string `json:"message"`
}

// WriteJSON writes err as a JSON error response. Internal causes are logged
// to logger (when non-nil) and replaced with a generic message.
func WriteJSON(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.String("error", err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Message: Message(err)})
}

// NotFound builds a not_found error for the given operation.
func NotFound(op, msg string) *Error {
	return &Error{Code: ENotFound, Op: op, Msg: msg}
}

// Invalid builds a validation error.
func Invalid(op, msg string) *Error {
	return &Error{Code: EInvalid, Op: op, Msg: msg}
}

// Conflict builds a conflict error.
func Conflict(op, msg string) *Error {
	return &Error{Code: EConflict, Op: op, Msg: msg}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Code: EInternal, Op: op, Err: err}
}
