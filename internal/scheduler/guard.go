package scheduler

import "sync"

// Guard is the concurrency guard for one fetch family: an explicit
// idle/running state machine with the single allowed transition
// idle -> running -> idle. A cycle that fails to acquire the guard is
// skipped outright, not queued.
type Guard struct {
	mu      sync.Mutex
	running bool
}

// TryAcquire moves the guard to running. It reports false, without
// blocking, when a cycle is already in flight.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

// Release returns the guard to idle. Always call it on the deferred path
// so a panicking cycle cannot leave the guard stuck.
func (g *Guard) Release() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}

// Running reports whether a cycle currently holds the guard.
func (g *Guard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}
