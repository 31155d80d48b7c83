package control

import "sync/atomic"

// Guard is the reaction guard: while set, new corrections are dropped.
type Guard struct {
	active atomic.Bool
}

// TryAcquire sets the guard and reports whether it was clear before.
func (g *Guard) TryAcquire() bool {
	return g.active.CompareAndSwap(false, true)
}

// Release clears the guard.
func (g *Guard) Release() {
	g.active.Store(false)
}

// Active reports whether a correction is in flight.
func (g *Guard) Active() bool {
	return g.active.Load()
}
