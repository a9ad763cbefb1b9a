package spacestatus

import (
	"slices"
	"sync"
)

// watchHub wakes document subscribers after every applied event. Signals
// coalesce: a subscriber that has not yet consumed the previous signal is
// woken once and reads the latest document from the [Store].
type watchHub struct {
	mu      sync.Mutex
	entries []*watchEntry
}

type watchEntry struct {
	signal chan struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{}
}

// subscribe registers a new subscriber. Callers must unsubscribe it.
func (h *watchHub) subscribe() *watchEntry {
	e := &watchEntry{signal: make(chan struct{}, 1)}
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	return e
}

func (h *watchHub) unsubscribe(entry *watchEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = slices.DeleteFunc(h.entries, func(e *watchEntry) bool { return e == entry })
}

// count returns the number of active subscribers.
func (h *watchHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// notify wakes every subscriber without blocking.
func (h *watchHub) notify() {
	h.mu.Lock()
	es := slices.Clone(h.entries)
	h.mu.Unlock()
	for _, e := range es {
		select {
		case e.signal <- struct{}{}:
		default:
		}
	}
}
