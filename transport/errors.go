package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for dispatch.
var (
	// ErrLocalDisabled indicates no socket path is configured.
	ErrLocalDisabled = errors.New("local channel disabled")

	// ErrNetworkDisabled indicates no base URL is configured.
	ErrNetworkDisabled = errors.New("network channel disabled")
)

// TransportError is returned when neither channel produced a response.
// errors.Is and errors.As see through to both causes.
type TransportError struct {
	Path    string
	Local   error
	Network error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch %s: local: %v; network: %v", e.Path, e.Local, e.Network)
}

// Unwrap returns both causes.
func (e *TransportError) Unwrap() []error {
	return []error{e.Local, e.Network}
}

// DecodingError reports a response body that is not valid UTF-8, not valid
// JSON, or carries an identifier that does not parse.
type DecodingError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DecodingError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx answer from the server. Message is the response body
// verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("pantry: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// StatusCode returns the HTTP status of an APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether the server answered 404, which it also uses when
// no LLM satisfies a filter.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized reports whether the server rejected the credentials or the
// caller lacks the needed permission.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsTransport reports whether err means the server could not be reached.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}
