package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind string

const (
	// KindFetchTimeout means the per-request deadline expired
	KindFetchTimeout Kind = "FetchTimeout"
	// KindContentTooLarge means the body exceeded the configured maximum
	KindContentTooLarge Kind = "ContentTooLarge"
	// KindUnsupportedContentType means the response was not HTML
	KindUnsupportedContentType Kind = "UnsupportedContentType"
	// KindFetchError covers network failures and non-success statuses
	KindFetchError Kind = "FetchError"
)

// Error represents an error during URL fetching.
type Error struct {
	Kind       Kind
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient: a network error,
// a 429 or a 5xx status. Timeouts are not retried.
func (e *Error) Retryable() bool {
	if e.Kind != KindFetchError {
		return false
	}
	if e.StatusCode == 0 {
		return e.Cause != nil
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// KindOf returns the kind of a fetch error, or "" when err is not one.
func KindOf(err error) Kind {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return ""
}
