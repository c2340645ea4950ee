package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	pasteerrors "pasteup/internal/errors"
	"pasteup/internal/logging"
)

// NewWithCircuitBreaker returns New(timeout, logger) with a breaker named name
// in front of the transport.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, name string) *http.Client {
	return NewWithCircuitBreakerConfig(timeout, logger, name, pasteerrors.DefaultBreakerConfig())
}

// NewWithCircuitBreakerConfig is NewWithCircuitBreaker with explicit thresholds.
func NewWithCircuitBreakerConfig(timeout time.Duration, logger logging.Logger, name string, cfg pasteerrors.BreakerConfig) *http.Client {
	client := New(timeout, logger)
	client.Transport = &breakerTransport{
		next:    client.Transport,
		breaker: pasteerrors.NewBreaker(name, cfg),
	}
	return client
}

// breakerTransport counts transport errors and transient statuses as
// failures. Caller cancellation says nothing about the endpoint and is
// recorded as a success so a half-open probe is not wasted.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *pasteerrors.Breaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.next.RoundTrip(req)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		t.breaker.Mark(nil)
	case err != nil:
		t.breaker.Mark(err)
	default:
		statusErr := pasteerrors.FromHTTPStatus(resp.StatusCode, "")
		if resp.StatusCode >= 400 && pasteerrors.IsTransient(statusErr) {
			t.breaker.Mark(statusErr)
		} else {
			t.breaker.Mark(nil)
		}
	}
	return resp, err
}
