package spacestatus

import (
	"sync"
	"time"
)

// Store owns the live status document. All mutation goes through Apply; every
// accessor returns a copy.
//
// The pipeline is the only writer. The lock exists so that HTTP readers can
// take consistent copies while a message is being applied.
type Store struct {
	mu  sync.RWMutex
	doc Document
}

// NewStore returns a store seeded with doc.
func NewStore(seed Document) *Store {
	return &Store{doc: seed}
}

// Document returns a copy of the current document.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Apply applies ev at wall-clock time now and returns the updated document.
//
// The category's LastChange is set to now truncated to whole seconds, for
// every event of that category including [Noop]. LastChange never moves
// backwards: if now is earlier than the stored value, the stored value is
// kept.
func (s *Store) Apply(ev Event, now time.Time) Document {
	now = now.Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Category {
	case CategoryDoor:
		switch ev.Kind {
		case DoorOpened:
			s.doc.Door.Open = true
		case DoorClosed:
			s.doc.Door.Open = false
		case DoorLocked:
			s.doc.Door.Locked = true
		case DoorUnlocked:
			s.doc.Door.Locked = false
		}
		s.doc.Door.LastChange = later(s.doc.Door.LastChange, now)
	case CategoryLever:
		switch ev.Kind {
		case LeverOpened:
			s.doc.Lever.Open = true
		case LeverClosed:
			s.doc.Lever.Open = false
		}
		s.doc.Lever.LastChange = later(s.doc.Lever.LastChange, now)
	}
	return s.doc
}

// Restore overwrites the managed fields with a previously saved state. It is
// only called at startup, before any message is applied.
func (s *Store) Restore(lever LeverState, door DoorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Lever = lever
	s.doc.Door = door
}

func later(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
