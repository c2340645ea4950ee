// Package errors classifies upload failures so notices, logs and metrics can
// tell a flaky endpoint from a rejected request.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind is the failure class recorded with every failed upload.
type Kind int

const (
	// KindPermanent failures repeat until the request or configuration changes.
	KindPermanent Kind = iota
	// KindTransient failures may pass on a later attempt.
	KindTransient
	// KindDegraded means the endpoint was not called at all.
	KindDegraded
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindDegraded:
		return "degraded"
	default:
		return "permanent"
	}
}

// UploadError carries the class and, when the endpoint answered, its status.
type UploadError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s upload error: %v", e.Kind, e.Err)
	}
	return e.Kind.String() + " upload error"
}

func (e *UploadError) Unwrap() error { return e.Err }

// Transient wraps err as a failure worth retrying later.
func Transient(err error, message string) *UploadError {
	return &UploadError{Kind: KindTransient, Message: message, Err: err}
}

// Permanent wraps err as a failure that will repeat.
func Permanent(err error, message string) *UploadError {
	return &UploadError{Kind: KindPermanent, Message: message, Err: err}
}

// Degraded wraps err as a skipped call.
func Degraded(err error, message string) *UploadError {
	return &UploadError{Kind: KindDegraded, Message: message, Err: err}
}

// FromHTTPStatus classifies a non-2xx endpoint answer. Throttling, timeouts and
// 5xx gateway errors are transient; everything else is permanent.
func FromHTTPStatus(statusCode int, body string) error {
	kind := KindPermanent
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = KindTransient
	}
	return &UploadError{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    body,
		Err:        fmt.Errorf("http status %d", statusCode),
	}
}

// KindOf classifies err. Errors that are not UploadErrors are transient when
// they come from the network or a deadline, permanent otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindPermanent
	}
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		return uploadErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return KindTransient
		}
	}
	return KindPermanent
}

// IsTransient reports whether err may pass on a later attempt.
func IsTransient(err error) bool { return err != nil && KindOf(err) == KindTransient }

// IsDegraded reports whether err stands for a call that was never made.
func IsDegraded(err error) bool { return err != nil && KindOf(err) == KindDegraded }

// StatusCode returns the endpoint status carried by err, or 0.
func StatusCode(err error) int {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		return uploadErr.StatusCode
	}
	return 0
}
