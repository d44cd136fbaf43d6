// Package sequence coalesces repeated async work per key. Submitting a key
// that is already being worked on queues exactly one rerun instead of
// piling up goroutines, so a burst of triggers collapses into "run now,
// run once more after".
package sequence

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry struct {
	mu      sync.Mutex
	running bool
	pending bool
	// dead marks an entry already removed from the map; submitters that
	// raced the removal must start over with a fresh entry.
	dead bool
}

// Sequencer runs fn per key with at most one execution in flight per key
// and at most one rerun queued.
type Sequencer struct {
	fn      func(ctx context.Context, key string)
	entries *xsync.MapOf[string, *entry]
}

// New creates a sequencer around the given work function.
func New(fn func(ctx context.Context, key string)) *Sequencer {
	return &Sequencer{
		fn:      fn,
		entries: xsync.NewMapOf[string, *entry](),
	}
}

// Submit requests a run for the key. Idle keys start immediately; keys
// already running get exactly one rerun queued, no matter how many further
// submits arrive meanwhile.
func (s *Sequencer) Submit(ctx context.Context, key string) {
	for {
		e, _ := s.entries.LoadOrStore(key, &entry{})
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			s.removeEntry(key, e)
			continue
		}
		if e.running {
			e.pending = true
			e.mu.Unlock()
			return
		}
		e.running = true
		e.mu.Unlock()
		go s.run(ctx, key, e)
		return
	}
}

func (s *Sequencer) run(ctx context.Context, key string, e *entry) {
	for {
		s.fn(ctx, key)
		e.mu.Lock()
		if e.pending && ctx.Err() == nil {
			e.pending = false
			e.mu.Unlock()
			continue
		}
		e.running = false
		e.dead = true
		e.mu.Unlock()
		s.removeEntry(key, e)
		return
	}
}

// removeEntry drops the entry from the map only while it still holds this
// exact entry, so a fresh entry stored by a racing submit survives.
func (s *Sequencer) removeEntry(key string, e *entry) {
	s.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		return old, !loaded || old == e
	})
}

// Running reports whether the key currently has an execution in flight.
func (s *Sequencer) Running(key string) bool {
	e, ok := s.entries.Load(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
