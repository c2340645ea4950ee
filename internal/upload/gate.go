package upload

import "sync/atomic"

// Gate is a single-flight guard. At most one holder exists at a time;
// contenders are rejected rather than queued.
type Gate struct {
	held atomic.Bool
}

// TryAcquire takes the gate and reports true, or reports false without side
// effects when it is already held.
func (g *Gate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release clears the gate. Releasing an unheld gate is a no-op.
func (g *Gate) Release() {
	g.held.Store(false)
}

// Held reports whether an upload currently owns the gate.
func (g *Gate) Held() bool {
	return g.held.Load()
}
