package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Application error codes.
const (
	EINVALID         = "invalid"
	ENOTFOUND        = "not_found"
	EUNAUTHENTICATED = "unauthenticated"
	EUNAUTHORIZED    = "unauthorized"
	EUNAVAILABLE     = "unavailable"
	ECONFLICT        = "conflict"
	EINTERNAL        = "internal"
)

const (
	// IdInvalid is returned when an empty document ID is passed to an operation that needs one.
	IdInvalid modelError = "models: ID provided was invalid"
	// UserIdValid is returned when an operation needs a user ID and none is provided.
	UserIdValid modelError = "models: user ID is required"
	// RememberTooShort is returned when a remember token is not at least 32 bytes.
	RememberTooShort modelError = "models: remember token must be at least 32 bytes"
	// RememberHashEmpty is returned when a user is stored without a remember token hash.
	RememberHashEmpty modelError = "models: remember token hash is required"
)

// Error represents an application-specific error. The Code tells callers
// how to react to it, the Message is meant for the user.
type Error struct {
	Code    string
	Message string
	// Err is the underlying driver or transport error, if any.
	Err error
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("app error: code=%s message=%s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("app error: code=%s message=%s", e.Code, e.Message)
}

// Unwrap gives errors.Is and errors.As access to the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unavailable wraps a transport or backend error of a remote operation.
func Unavailable(err error) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Message: "The backend is unavailable, please try again.",
		Err:     err,
	}
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	var m modelError
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	} else if errors.As(err, &m) {
		return EINVALID
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	var e *Error
	var m modelError
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	} else if errors.As(err, &m) {
		return m.Public()
	}
	return "Internal error."
}

// Is reports whether err carries the given application error code.
func Is(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// codes maps application error codes to http status codes.
var codes = map[string]int{
	EINVALID:         http.StatusBadRequest,
	ENOTFOUND:        http.StatusNotFound,
	EUNAUTHENTICATED: http.StatusUnauthorized,
	EUNAUTHORIZED:    http.StatusForbidden,
	EUNAVAILABLE:     http.StatusServiceUnavailable,
	ECONFLICT:        http.StatusConflict,
	EINTERNAL:        http.StatusInternalServerError,
}

// StatusCode returns the http status code for an application error code.
func StatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the json body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ReturnError writes an error response for err. Internal errors are logged
// and their details hidden from the client.
func ReturnError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := ErrorCode(err), ErrorMessage(err)
	if code == EINTERNAL || code == EUNAVAILABLE {
		LogError(r, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(code))
	json.NewEncoder(w).Encode(&ErrorResponse{Error: message, Code: code})
}

// LogError logs an error together with the request it occurred in.
func LogError(r *http.Request, err error) {
	log.WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Errorf("http error: %v", err)
}
