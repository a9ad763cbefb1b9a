package spacestatustest

import (
	"testing"
	"time"

	"github.com/andrew-d/spacestatus"
)

func TestHarness_SendAndInspect(t *testing.T) {
	h := New(t, Options{})

	if h.HasPersisted() || h.SymlinkTarget() != "" {
		t.Fatal("nothing should be persisted before the first message")
	}

	h.Clock.Advance(time.Minute)
	h.Send(spacestatus.DefaultLeverTopic, "open")

	doc := h.PersistedDocument()
	if !doc.Lever.Open || !doc.Lever.LastChange.Equal(Epoch.Add(time.Minute)) {
		t.Fatalf("unexpected lever state: %+v", doc.Lever)
	}
	if got := h.SymlinkTarget(); got != h.Config.OpenImage {
		t.Fatalf("symlink -> %q, want %q", got, h.Config.OpenImage)
	}
	if got := h.Retained(spacestatus.DefaultIsOpenTopic); got != "true" {
		t.Fatalf("isOpen = %q", got)
	}
}

func TestHarness_Restart(t *testing.T) {
	h := New(t, Options{StateDB: true})
	h.Send(spacestatus.DefaultDoorTopic, "door locked")
	h.Restart()

	if !h.App.Document().Door.Locked {
		t.Fatal("checkpoint not restored after restart")
	}
	if got := h.Retained(spacestatus.DefaultJSONTopic); got != "" {
		t.Fatalf("new bus should start empty, got %q", got)
	}
}

func TestClock(t *testing.T) {
	c := &Clock{now: Epoch}
	c.Advance(-time.Second)
	if got := c.Now(); !got.Equal(Epoch.Add(-time.Second)) {
		t.Fatalf("Now() = %v", got)
	}
}
