// Package async runs background uploads without letting a panic take the
// process down.
package async

import (
	"runtime/debug"
	"sync"
)

// PanicLogger receives panic reports from background work.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn on its own goroutine and logs a panic instead of crashing.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover must be deferred directly. It logs the recovered value and stack.
func Recover(logger PanicLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	if name == "" {
		name = "background"
	}
	logger.Error("%s panicked: %v\n%s", name, r, debug.Stack())
}

// Tracker starts panic-guarded goroutines and waits for them, so a shutdown
// can drain uploads that are already running.
type Tracker struct {
	logger PanicLogger
	wg     sync.WaitGroup
}

// NewTracker returns a tracker that reports panics to logger.
func NewTracker(logger PanicLogger) *Tracker {
	return &Tracker{logger: logger}
}

// Go starts fn and counts it until it returns or panics.
func (t *Tracker) Go(name string, fn func()) {
	t.wg.Add(1)
	Go(t.logger, name, func() {
		defer t.wg.Done()
		fn()
	})
}

// Wait blocks until every started function has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
