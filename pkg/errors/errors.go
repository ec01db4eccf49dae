package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies the failure surfaced by the fetch client
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindNetworkUnreachable Kind = "network_unreachable"
	KindHTTPStatus         Kind = "http_status"
	KindParseFailure       Kind = "parse_failure"
)

// Error is the classified error returned to callers once all attempts are
// exhausted or a terminal failure occurs. It is never mutated after creation.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTimeout creates a timeout error for an attempt that never settled
func NewTimeout(url string, cause error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("request to %s timed out, check your network connection", url),
		Err:     cause,
	}
}

// NewNetworkUnreachable creates an error for transport level failures
func NewNetworkUnreachable(url string, cause error) *Error {
	msg := fmt.Sprintf("unable to reach %s", url)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{
		Kind:    KindNetworkUnreachable,
		Message: msg,
		Err:     cause,
	}
}

// NewHTTPStatus creates an error for a terminal non-2xx response. An empty
// message falls back to the status text.
func NewHTTPStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status code: %d", status)
	}
	return &Error{
		Kind:    KindHTTPStatus,
		Status:  status,
		Message: message,
	}
}

// NewParseFailure creates an error for an otherwise successful response
// whose body could not be decoded
func NewParseFailure(status int, cause error) *Error {
	return &Error{
		Kind:    KindParseFailure,
		Status:  status,
		Message: fmt.Sprintf("failed to parse JSON response: %v", cause),
		Err:     cause,
	}
}

// As returns the classified error in err's chain, if any
func As(err error) (*Error, bool) {
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsKind reports whether err carries a classified error of the given kind
func IsKind(err error, kind Kind) bool {
	classified, ok := As(err)
	return ok && classified.Kind == kind
}

// StatusOf returns the HTTP status carried by a classified error, or 0
func StatusOf(err error) int {
	if classified, ok := As(err); ok {
		return classified.Status
	}
	return 0
}

// DefaultRetryableStatuses are the HTTP status codes retried when a call does
// not configure its own set
func DefaultRetryableStatuses() map[int]bool {
	return map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
}

// IsRetryableStatusCode checks a status code against the default retryable set
func IsRetryableStatusCode(statusCode int) bool {
	return DefaultRetryableStatuses()[statusCode]
}

// IsSuccessStatus reports whether the status is in the 2xx/3xx range
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 400
}
