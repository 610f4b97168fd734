package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTooLarge is returned when a response body exceeds the configured limit.
var ErrTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed. 5xx responses
// other than 501 Not Implemented and 429 Too Many Requests are temporary.
func (e *StatusError) Temporary() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode != http.StatusNotImplemented
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsClientFailure reports whether err is a non-retryable 4xx response or an
// oversized body, both caused by the URL the caller supplied.
func IsClientFailure(err error) bool {
	if errors.Is(err, ErrTooLarge) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && IsClientError(se.StatusCode) && !se.Temporary()
}
