package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

const defaultChannelBuffer = 64

type watcher struct {
	ch     chan StreamEvent
	filter EventFilter
}

// MemoryHub is the in-process EventHub. Publishing never blocks: an event for
// a watcher whose buffer is full is dropped and counted.
type MemoryHub struct {
	mu       sync.RWMutex
	watchers map[uint64]*watcher
	nextID   atomic.Uint64
	dropped  atomic.Int64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{watchers: make(map[uint64]*watcher)}
}

// Publish delivers event to every watcher whose filter matches.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, w := range h.watchers {
		if !w.filter.Matches(event) {
			continue
		}
		select {
		case w.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a watcher. The returned cancel func removes it and
// closes its channel; it is safe to call more than once.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.nextID.Add(1)
	w := &watcher{ch: make(chan StreamEvent, defaultChannelBuffer), filter: filter}

	h.mu.Lock()
	h.watchers[id] = w
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers, id)
			close(w.ch)
			h.mu.Unlock()
		})
	}
	return w.ch, cancel, nil
}

// Watchers returns the number of live subscriptions.
func (h *MemoryHub) Watchers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// Dropped returns how many deliveries were skipped because a watcher was full.
func (h *MemoryHub) Dropped() int64 { return h.dropped.Load() }

// Matches reports whether e passes the filter.
func (f EventFilter) Matches(e StreamEvent) bool {
	if f.ExecutionID != "" && f.ExecutionID != e.ExecutionID {
		return false
	}
	return len(f.EventTypes) == 0 || slices.Contains(f.EventTypes, e.EventType)
}
