package spacestatus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are registered on a per-App registry so that several Apps (as in
// tests) do not collide on the global one.
type metrics struct {
	registry *prometheus.Registry

	messages           *prometheus.CounterVec
	persistFailures    prometheus.Counter
	publishFailures    prometheus.Counter
	checkpointFailures prometheus.Counter
	open               prometheus.Gauge
	lastChange         *prometheus.GaugeVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spacestatus_messages_total",
			Help: "Inbound bus messages by decoded category (door, lever, ignored).",
		}, []string{"category"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "spacestatus_persist_failures_total",
			Help: "Messages whose document file or state image could not be written.",
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "spacestatus_publish_failures_total",
			Help: "Messages whose outputs could not be published.",
		}),
		checkpointFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "spacestatus_checkpoint_failures_total",
			Help: "Failed checkpoint saves.",
		}),
		open: f.NewGauge(prometheus.GaugeOpts{
			Name: "spacestatus_open",
			Help: "1 if the status lever is open, 0 otherwise.",
		}),
		lastChange: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spacestatus_last_change_timestamp_seconds",
			Help: "Unix time of the last event per category.",
		}, []string{"category"}),
	}
}

// backlogger is implemented by buses that queue inbound messages.
type backlogger interface {
	Backlog() int
}

// watchBacklog exports the bus's queue depth.
func (m *metrics) watchBacklog(b backlogger) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "spacestatus_bus_backlog",
		Help: "Inbound messages received but not yet handled.",
	}, func() float64 { return float64(b.Backlog()) })
}

// observe records the document state after an applied event.
func (m *metrics) observe(doc Document) {
	if doc.Lever.Open {
		m.open.Set(1)
	} else {
		m.open.Set(0)
	}
	setUnix(m.lastChange.WithLabelValues(CategoryDoor.String()), doc.Door.LastChange)
	setUnix(m.lastChange.WithLabelValues(CategoryLever.String()), doc.Lever.LastChange)
}

func setUnix(g prometheus.Gauge, t time.Time) {
	g.Set(float64(unixSeconds(t)))
}
