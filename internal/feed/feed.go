package feed

import (
	"sync"
)

// Feed holds the current State of the open conversation and applies events
// to it one at a time.
type Feed struct {
	mu      sync.RWMutex
	state   State
	updates chan struct{}
}

// NewFeed creates an empty feed with no conversation.
func NewFeed(policy OrphanPolicy) *Feed {
	return &Feed{
		state:   NewState("", policy),
		updates: make(chan struct{}, 1),
	}
}

// Apply reduces ev into the current state and returns the result.
func (f *Feed) Apply(ev Event) State {
	f.mu.Lock()
	prev := f.state
	next := Reduce(prev, ev)
	f.state = next
	f.mu.Unlock()

	if next.version != prev.version {
		f.notify()
	}
	return next
}

// Snapshot returns the current state.
func (f *Feed) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Updates signals after state changes. Signals coalesce: a reader that falls
// behind sees one pending signal and should re-read Snapshot.
func (f *Feed) Updates() <-chan struct{} {
	return f.updates
}

func (f *Feed) notify() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}
