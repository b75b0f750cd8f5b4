// Package netutil holds the outbound HTTP plumbing shared by the chat
// channels: retry classification, a retrying transport and error kinds
// for logs and metrics.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// StatusError reports a non-2xx reply from a remote API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status (%d)", e.Code)
	}
	return fmt.Sprintf("unexpected status (%d): %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// NotSent reports whether err happened before the request reached the
// server, so resending cannot duplicate a non-idempotent call.
func NotSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// ShouldRetry reports whether an error is worth retrying. Transient
// dial/timeout failures and 429/5xx replies qualify.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	return false
}
