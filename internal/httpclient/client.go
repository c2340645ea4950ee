package httpclient

import (
	"net/http"
	"time"

	"pasteup/internal/logging"
)

// DefaultTimeout bounds a single request when callers pass a zero timeout.
const DefaultTimeout = 60 * time.Second

// New builds an HTTP client with a request timeout and debug request logging.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   http.DefaultTransport,
			logger: logging.OrNop(logger),
		},
	}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(started).Round(time.Millisecond)
	if err != nil {
		t.logger.Debug("%s %s failed after %s: %v", req.Method, req.URL.Redacted(), elapsed, err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d in %s", req.Method, req.URL.Redacted(), resp.StatusCode, elapsed)
	return resp, nil
}
