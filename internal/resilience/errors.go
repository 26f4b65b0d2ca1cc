package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// TransientError marks a failure that is safe to retry, such as a 5xx or
// 429 response.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, or a network-level failure reaching the server.
// Cancellation is never transient. A deadline is, because per-request
// client timeouts surface that way; Do stops on its own when the caller's
// context expires.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// http.Client wraps transport failures in *url.Error.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// IsTransientHTTPStatus reports whether a response status is retryable:
// 429 or any 5xx. Every other 4xx, 408 included, is final.
func IsTransientHTTPStatus(code int) bool {
	return code == 429 || (code >= 500 && code <= 599)
}
