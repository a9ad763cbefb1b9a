package spacestatus

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Severity indicates how serious a [Problem] is.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

func (s Severity) level() slog.Level {
	if s == Error {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// Stage is a step of message handling that can fail on its own.
type Stage string

const (
	StageCheckpoint Stage = "checkpoint"
	StagePersist    Stage = "persist"
	StagePublish    Stage = "publish"
)

// Problem is a stage that failed while handling the latest event.
type Problem struct {
	Stage    Stage
	Severity Severity
	Message  string
	Err      string

	// Since is when the current streak of failures started and Count is
	// how many consecutive events the stage has failed on.
	Since time.Time
	Count int
}

// outcome collects the stage failures of one event.
type outcome struct {
	logger *slog.Logger
	failed []Problem
}

func (o *outcome) fail(ctx context.Context, stage Stage, sev Severity, msg string, err error) {
	o.logger.Log(ctx, sev.level(), msg, "stage", string(stage), "err", err)
	o.failed = append(o.failed, Problem{
		Stage:    stage,
		Severity: sev,
		Message:  msg,
		Err:      err.Error(),
	})
}

// health holds the problems left behind by the latest event. A stage that
// succeeds, or is skipped, on the next event drops out.
type health struct {
	mu     sync.Mutex
	now    func() time.Time
	active map[Stage]Problem
}

func newHealth(now func() time.Time) *health {
	if now == nil {
		now = time.Now
	}
	return &health{now: now, active: make(map[Stage]Problem)}
}

func (h *health) record(o *outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	next := make(map[Stage]Problem, len(o.failed))
	for _, p := range o.failed {
		if prev, ok := h.active[p.Stage]; ok {
			p.Since, p.Count = prev.Since, prev.Count+1
		} else {
			p.Since, p.Count = now, 1
		}
		next[p.Stage] = p
	}
	h.active = next
}

// problems returns the active problems ordered by stage name.
func (h *health) problems() []Problem {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Problem, 0, len(h.active))
	for _, p := range h.active {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Problem) int {
		return strings.Compare(string(a.Stage), string(b.Stage))
	})
	return out
}
