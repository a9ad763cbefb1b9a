package spacestatus

import (
	"math/rand/v2"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStoreApply(t *testing.T) {
	s := NewStore(Document{})

	doc := s.Apply(Event{CategoryDoor, DoorOpened}, t0)
	if !doc.Door.Open || doc.Door.Locked || !doc.Door.LastChange.Equal(t0) {
		t.Fatalf("after door open: %+v", doc.Door)
	}
	if !doc.Lever.LastChange.IsZero() {
		t.Fatalf("door event touched lever: %+v", doc.Lever)
	}

	doc = s.Apply(Event{CategoryDoor, DoorLocked}, t0.Add(time.Second))
	if !doc.Door.Open || !doc.Door.Locked {
		t.Fatalf("lock must not change open: %+v", doc.Door)
	}

	doc = s.Apply(Event{CategoryLever, LeverOpened}, t0.Add(2*time.Second))
	if !doc.Lever.Open || !doc.Lever.LastChange.Equal(t0.Add(2*time.Second)) {
		t.Fatalf("after lever open: %+v", doc.Lever)
	}
	if !doc.Door.LastChange.Equal(t0.Add(time.Second)) {
		t.Fatalf("lever event touched door: %+v", doc.Door)
	}

	if got := s.Document(); !got.Equal(doc) {
		t.Fatalf("Document() = %+v, want %+v", got, doc)
	}
}

func TestStoreApplyNoopAdvancesLastChange(t *testing.T) {
	s := NewStore(Document{})
	s.Apply(Event{CategoryLever, LeverOpened}, t0)

	doc := s.Apply(Event{CategoryLever, Noop}, t0.Add(5*time.Second))
	if !doc.Lever.Open {
		t.Fatal("noop changed lever state")
	}
	if !doc.Lever.LastChange.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("LastChange = %v, want %v", doc.Lever.LastChange, t0.Add(5*time.Second))
	}
}

func TestStoreApplyTruncatesToSeconds(t *testing.T) {
	s := NewStore(Document{})
	doc := s.Apply(Event{CategoryDoor, Noop}, t0.Add(900*time.Millisecond))
	if !doc.Door.LastChange.Equal(t0) {
		t.Fatalf("LastChange = %v, want %v", doc.Door.LastChange, t0)
	}
}

func TestStoreApplyClockStepsBack(t *testing.T) {
	s := NewStore(Document{})
	s.Apply(Event{CategoryDoor, DoorOpened}, t0)

	doc := s.Apply(Event{CategoryDoor, DoorClosed}, t0.Add(-time.Hour))
	if doc.Door.Open {
		t.Fatal("state must still be applied when the clock steps back")
	}
	if !doc.Door.LastChange.Equal(t0) {
		t.Fatalf("LastChange went backwards: %v", doc.Door.LastChange)
	}
}

func TestStoreApplyReturnsCopy(t *testing.T) {
	s := NewStore(Document{})
	doc := s.Apply(Event{CategoryLever, LeverOpened}, t0)
	doc.Lever.Open = false
	if !s.Document().Lever.Open {
		t.Fatal("mutating the returned document changed the store")
	}
}

// TestStoreLastEventWins applies random event sequences and checks that every
// boolean equals the last recognized event of its kind and that LastChange
// never decreases.
func TestStoreLastEventWins(t *testing.T) {
	kinds := []Event{
		{CategoryDoor, DoorOpened}, {CategoryDoor, DoorClosed},
		{CategoryDoor, DoorLocked}, {CategoryDoor, DoorUnlocked},
		{CategoryDoor, Noop},
		{CategoryLever, LeverOpened}, {CategoryLever, LeverClosed},
		{CategoryLever, Noop},
	}
	rng := rand.New(rand.NewPCG(1, 2))

	for range 100 {
		s := NewStore(Document{})
		var want Document
		now := t0
		var prev Document
		for range 50 {
			ev := kinds[rng.IntN(len(kinds))]
			// Jitter the clock, sometimes backwards.
			now = now.Add(time.Duration(rng.IntN(5000)-1000) * time.Millisecond)

			switch ev.Kind {
			case DoorOpened:
				want.Door.Open = true
			case DoorClosed:
				want.Door.Open = false
			case DoorLocked:
				want.Door.Locked = true
			case DoorUnlocked:
				want.Door.Locked = false
			case LeverOpened:
				want.Lever.Open = true
			case LeverClosed:
				want.Lever.Open = false
			}

			doc := s.Apply(ev, now)
			if doc.Door.Open != want.Door.Open || doc.Door.Locked != want.Door.Locked || doc.Lever.Open != want.Lever.Open {
				t.Fatalf("after %v/%v: got %+v, want booleans of %+v", ev.Category, ev.Kind, doc, want)
			}
			if doc.Door.LastChange.Before(prev.Door.LastChange) || doc.Lever.LastChange.Before(prev.Lever.LastChange) {
				t.Fatalf("LastChange decreased: %+v -> %+v", prev, doc)
			}
			prev = doc
		}
	}
}

func TestStoreRestore(t *testing.T) {
	s := NewStore(Document{})
	s.Restore(LeverState{Open: true, LastChange: t0}, DoorState{Locked: true, LastChange: t0})

	doc := s.Apply(Event{CategoryDoor, DoorOpened}, t0.Add(-time.Minute))
	if !doc.Lever.Open || !doc.Door.Locked || !doc.Door.Open {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if !doc.Door.LastChange.Equal(t0) {
		t.Fatalf("restored LastChange must bound later events: %v", doc.Door.LastChange)
	}
}
