// Package resilience classifies upstream failures and retries the transient
// ones with exponential backoff.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotFound marks a lookup that succeeded but matched nothing. It is never
// retried.
var ErrNotFound = errors.New("not found")

// Class groups failures by what a caller should do about them.
type Class string

const (
	ClassTransient Class = "transient"
	ClassPermanent Class = "permanent"
	ClassNotFound  Class = "not_found"
)

// TransientError marks a failure worth another attempt. RetryAfter carries
// the server's requested pause, if it sent one.
type TransientError struct {
	Err        error
	StatusCode int
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient. statusCode is 0 when the failure
// happened below HTTP.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PermanentError marks a failure that another attempt will not fix, such as
// a 400 or an unparseable body. It wins over any transient-looking cause it
// wraps.
type PermanentError struct {
	Err        error
	StatusCode int
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as permanent.
func NewPermanentError(err error, statusCode int) *PermanentError {
	return &PermanentError{Err: err, StatusCode: statusCode}
}

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransientHTTPStatus reports whether a response with this status may
// succeed when repeated.
func IsTransientHTTPStatus(statusCode int) bool {
	return retryableStatus[statusCode]
}

// StatusError turns a non-2xx response into a typed error. Long bodies are
// cut so log lines stay readable.
func StatusError(service string, statusCode int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	err := fmt.Errorf("%s: unexpected status %d: %s", service, statusCode, body)
	if retryableStatus[statusCode] {
		return NewTransientError(err, statusCode)
	}
	return NewPermanentError(err, statusCode)
}

// ResponseError is StatusError for a received response. A Retry-After
// header on a retryable status is kept on the error.
func ResponseError(service string, resp *http.Response, body []byte) error {
	err := StatusError(service, resp.StatusCode, string(body))
	var te *TransientError
	if errors.As(err, &te) {
		te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return err
}

// parseRetryAfter reads delay-seconds or an HTTP date. Anything else, or a
// date in the past, yields zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// Substrings of errors from net/http and the resolver that are not typed.
var networkHints = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// Classify sorts err into a Class. Typed errors decide first; untyped ones
// are transient only when they look like a dropped or timed-out connection.
// A nil error has no class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	var (
		perm  *PermanentError
		trans *TransientError
		nerr  net.Error
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.As(err, &perm):
		return ClassPermanent
	case errors.As(err, &trans):
		return ClassTransient
	case errors.As(err, &nerr) && nerr.Timeout():
		return ClassTransient
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNABORTED):
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range networkHints {
		if strings.Contains(msg, hint) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
