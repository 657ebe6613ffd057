package upstreamclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors the worker and feed reader switch on, following the
// error taxonomy: transient network failures are retried, 404 is final,
// 401/403 are an operator problem, and a malformed body is a dropped item.
var (
	ErrNotFound  = errors.New("upstreamclient: resource not found")
	ErrAuth      = errors.New("upstreamclient: authentication or authorization failed")
	ErrMalformed = errors.New("upstreamclient: malformed response body")
)

// StatusError wraps a transport-level failure (timeout, connection reset,
// DNS), or, with Status set, an HTTP status not covered by the sentinel
// errors above. Transient is true when the caller should retry.
type StatusError struct {
	Transient bool
	Status    int
	Err       error
}

func (e *StatusError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstreamclient: http %d", e.Status)
	}
	return fmt.Sprintf("upstreamclient: %v", e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried: connection failures,
// timeouts, 429, and 5xx.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuth
	case code == http.StatusTooManyRequests || code >= 500:
		return &StatusError{Transient: true, Status: code}
	case code >= 400:
		return &StatusError{Transient: false, Status: code}
	default:
		return &StatusError{Transient: true, Status: code}
	}
}
