package async

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *panicRecorder) Error(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *panicRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestGoLogsPanicWithName(t *testing.T) {
	rec := &panicRecorder{}
	Go(rec, "paste-upload", func() { panic("boom") })

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	line := rec.snapshot()[0]
	assert.True(t, strings.HasPrefix(line, "paste-upload panicked: boom"), line)
	assert.Contains(t, line, "goroutine")
}

func TestRecoverWithoutLoggerSwallowsPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover(nil, "")
		panic("quiet")
	})
}

func TestTrackerWaitsForPanickingAndNormalWork(t *testing.T) {
	rec := &panicRecorder{}
	tracker := NewTracker(rec)
	release := make(chan struct{})
	var finished sync.WaitGroup
	finished.Add(1)

	tracker.Go("slow", func() {
		defer finished.Done()
		<-release
	})
	tracker.Go("broken", func() { panic("bad payload") })

	waited := make(chan struct{})
	go func() {
		tracker.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned before slow work finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	finished.Wait()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
	require.Len(t, rec.snapshot(), 1)
	assert.Contains(t, rec.snapshot()[0], "broken panicked: bad payload")
}
