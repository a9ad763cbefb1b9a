// Package spacestatustest runs a [spacestatus.App] against an in-memory bus
// in a temporary directory, so that tests can drive it with messages and
// inspect the files and publications it produces.
package spacestatustest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/andrew-d/spacestatus"
	"github.com/andrew-d/spacestatus/internal/bus"
)

// DefaultTemplate is a minimal SpaceAPI template.
const DefaultTemplate = `{
  // managed fields are filled in at runtime
  "api": "0.13",
  "space": "Testspace",
  "url": "https://example.org",
  "state": {"open": false, "lastchange": 0},
  "ext_door": {"open": false, "locked": false, "lastchange": 0},
}`

// Epoch is the initial time of a harness [Clock].
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d (or backward, if d is negative).
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Options configures [New].
type Options struct {
	// Template is the seed template contents. Defaults to DefaultTemplate.
	Template string

	// StateDB enables the SQLite checkpoint inside the harness directory.
	StateDB bool

	// HTTP starts the status API on a random local port.
	HTTP bool

	// Configure, if non-nil, may adjust the Config before the App is
	// created.
	Configure func(*spacestatus.Config)
}

// Harness is a running App and the fakes around it.
type Harness struct {
	App    *spacestatus.App
	Bus    *bus.Memory
	Clock  *Clock
	Dir    string
	Config spacestatus.Config

	t      testing.TB
	cancel context.CancelFunc
}

// New starts an App in a fresh temp dir. Both state images exist; the
// symlink and the document file do not. The App is shut down when t
// completes.
func New(t testing.TB, opts Options) *Harness {
	t.Helper()
	dir := t.TempDir()

	tmpl := opts.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	writeFile(t, filepath.Join(dir, "template.json"), tmpl)
	writeFile(t, filepath.Join(dir, "open.png"), "open")
	writeFile(t, filepath.Join(dir, "closed.png"), "closed")

	clock := &Clock{now: Epoch}
	cfg := spacestatus.Config{
		ClientID:     "spacestatustest",
		TemplatePath: filepath.Join(dir, "template.json"),
		OutPath:      filepath.Join(dir, "spaceapi.json"),
		OpenImage:    filepath.Join(dir, "open.png"),
		ClosedImage:  filepath.Join(dir, "closed.png"),
		SymlinkPath:  filepath.Join(dir, "state.png"),
		Now:          clock.Now,
		Logger:       slogt.New(t),
	}
	if opts.StateDB {
		cfg.StateDB = filepath.Join(dir, "state.db")
	}
	if opts.HTTP {
		cfg.HTTPAddr = "127.0.0.1:0"
	}
	if opts.Configure != nil {
		opts.Configure(&cfg)
	}

	h := &Harness{Clock: clock, Dir: dir, Config: cfg, t: t}
	h.start()
	t.Cleanup(h.stop)
	return h
}

func (h *Harness) start() {
	h.t.Helper()
	h.Bus = bus.NewMemory()
	cfg := h.Config
	cfg.Bus = h.Bus

	ctx, cancel := context.WithCancel(context.Background())
	app := spacestatus.New(cfg)
	if err := app.Start(ctx); err != nil {
		cancel()
		h.t.Fatalf("start: %v", err)
	}
	h.App = app
	h.cancel = cancel
}

func (h *Harness) stop() {
	if h.App == nil {
		return
	}
	h.cancel()
	if err := h.App.Shutdown(context.Background()); err != nil {
		h.t.Logf("shutdown: %v", err)
	}
	h.App = nil
}

// Restart shuts the App down and starts a new one with the same
// configuration and directory, and a fresh in-memory bus.
func (h *Harness) Restart() {
	h.t.Helper()
	h.stop()
	h.start()
}

// Send delivers a message and waits until the App has finished handling it.
func (h *Harness) Send(topic, payload string) {
	h.t.Helper()
	before := h.App.HandledForTest()
	if err := h.Bus.Deliver(context.Background(), topic, []byte(payload)); err != nil {
		h.t.Fatalf("deliver: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.App.HandledForTest() <= before {
		if time.Now().After(deadline) {
			h.t.Fatalf("message on %s was not handled in time", topic)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// PersistedDocument reads and parses the document file.
func (h *Harness) PersistedDocument() spacestatus.Document {
	h.t.Helper()
	data, err := os.ReadFile(h.Config.OutPath)
	if err != nil {
		h.t.Fatalf("read document: %v", err)
	}
	doc, err := spacestatus.ParseDocument(data)
	if err != nil {
		h.t.Fatalf("parse document: %v", err)
	}
	return doc
}

// HasPersisted reports whether the document file exists.
func (h *Harness) HasPersisted() bool {
	_, err := os.Stat(h.Config.OutPath)
	return err == nil
}

// SymlinkTarget returns the state image symlink's target, or "" if there is
// no symlink.
func (h *Harness) SymlinkTarget() string {
	target, err := os.Readlink(h.Config.SymlinkPath)
	if err != nil {
		return ""
	}
	return target
}

// Retained returns the last retained payload on topic, or "" if none.
func (h *Harness) Retained(topic string) string {
	p, _ := h.Bus.Retained(topic)
	return string(p)
}

func writeFile(t testing.TB, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}
