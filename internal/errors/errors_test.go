package errors

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTPStatusClassifiesByCode(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusServiceUnavailable, KindTransient},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusGatewayTimeout, KindTransient},
		{http.StatusUnauthorized, KindPermanent},
		{http.StatusRequestEntityTooLarge, KindPermanent},
		{http.StatusNotImplemented, KindPermanent},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "body")
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, "body", err.Error())
		})
	}
}

func TestKindOfUnclassifiedErrors(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("post upload: %w", opErr)))
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("wait: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindPermanent, KindOf(fmt.Errorf("invalid multipart body")))
	assert.Equal(t, KindPermanent, KindOf(nil))
	assert.False(t, IsTransient(nil))
	assert.Equal(t, 0, StatusCode(opErr))
}

func TestWrappedUploadErrorKeepsKind(t *testing.T) {
	err := fmt.Errorf("remote: %w", Degraded(nil, "paused"))
	assert.True(t, IsDegraded(err))
	assert.Equal(t, "degraded", KindOf(err).String())
	assert.Equal(t, "transient upload error: boom", Transient(fmt.Errorf("boom"), "").Error())
}

type fakeClock struct{ at time.Time }

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{at: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
	b := NewBreaker("upload-endpoint", cfg)
	b.now = clock.now
	return b, clock
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	require.NoError(t, b.Allow())
	b.Mark(fmt.Errorf("boom"))
	require.NoError(t, b.Allow())
	b.Mark(fmt.Errorf("boom"))
	assert.Equal(t, StateOpen, b.State())

	clock.advance(20 * time.Second)
	err := b.Allow()
	require.Error(t, err)
	assert.True(t, IsDegraded(err))
	assert.Equal(t, "upload-endpoint unavailable after repeated failures; retrying in 40s", err.Error())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Failures())
	assert.NoError(t, b.Allow())
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	b.Mark(fmt.Errorf("boom"))
	b.Mark(nil)
	b.Mark(fmt.Errorf("boom"))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 1, b.Failures())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Cooldown:         time.Second,
		OnStateChange: func(_ string, from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	b.Mark(fmt.Errorf("boom"))
	clock.advance(time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	b.Mark(fmt.Errorf("still down"))
	assert.Equal(t, StateOpen, b.State())
	assert.Error(t, b.Allow())

	clock.advance(time.Second)
	require.NoError(t, b.Allow())
	b.Mark(nil)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{
		"closed->open", "open->half-open", "half-open->open", "open->half-open", "half-open->closed",
	}, transitions)
}
