package synchronizer

import (
	"context"
	"log"
	"sync"
	"time"
)

type registryEntry struct {
	sync     *Synchronizer
	refs     int
	lastUsed time.Time
}

// Registry hands out one Synchronizer per viewer. Entries nobody holds are
// evicted; the snapshot cache and the store keep the durable state.
type Registry struct {
	deps    Deps
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty registry sharing deps.
func NewRegistry(deps Deps) *Registry {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{deps: deps, now: now, entries: make(map[string]*registryEntry)}
}

// For returns the viewer's Synchronizer, creating it on first use.
func (r *Registry) For(viewerID string) *Synchronizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entryLocked(viewerID).sync
}

func (r *Registry) entryLocked(viewerID string) *registryEntry {
	e, ok := r.entries[viewerID]
	if !ok {
		e = &registryEntry{sync: New(viewerID, r.deps)}
		r.entries[viewerID] = e
	}
	e.lastUsed = r.now()
	return e
}

// Acquire pins the viewer's Synchronizer until release is called. Releasing
// the last hold evicts the entry unless it still has unsent messages.
func (r *Registry) Acquire(viewerID string) (*Synchronizer, func()) {
	r.mu.Lock()
	e := r.entryLocked(viewerID)
	e.refs++
	r.mu.Unlock()

	var once sync.Once
	return e.sync, func() {
		once.Do(func() { r.release(viewerID, e) })
	}
}

func (r *Registry) release(viewerID string, e *registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	e.lastUsed = r.now()
	if e.refs > 0 || e.sync.HasOutgoing() {
		return
	}
	if cur, ok := r.entries[viewerID]; ok && cur == e {
		delete(r.entries, viewerID)
	}
}

// Forget drops the viewer's local state; its snapshot cache entry survives.
func (r *Registry) Forget(viewerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, viewerID)
}

// Sweep evicts entries that are not held, have no unsent messages and were
// last used more than idle ago. It returns how many were evicted.
func (r *Registry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)
	evicted := 0
	for id, e := range r.entries {
		if e.refs > 0 || e.lastUsed.After(cutoff) || e.sync.HasOutgoing() {
			continue
		}
		delete(r.entries, id)
		evicted++
	}
	return evicted
}

// StartSweeper runs Sweep every interval until ctx ends.
func (r *Registry) StartSweeper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(idle); n > 0 {
					log.Printf("registry sweep evicted=%d remaining=%d", n, r.Len())
				}
			}
		}
	}()
}

// Len reports how many viewers have local state.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
