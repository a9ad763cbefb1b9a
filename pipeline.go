package spacestatus

import (
	"context"

	"github.com/andrew-d/spacestatus/internal/bus"
	"github.com/andrew-d/spacestatus/internal/checkpoint"
)

// consume is the single consumer of bus messages. Each message is handled to
// completion before the next is read, so the Store has exactly one writer.
func (a *App) consume(ctx context.Context) {
	msgs := a.bus.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				a.logger.Warn("bus delivery channel closed")
				return
			}
			a.handle(ctx, msg)
			a.handled.Add(1)
		}
	}
}

// handle decodes msg and, if it carries an event, applies it, checkpoints
// the result, persists the document and publishes it. A failed persist skips
// the publish. Nothing is rolled back or retried; the next message starts
// from the updated in-memory document.
func (a *App) handle(ctx context.Context, msg bus.Message) {
	ev, ok := a.decoder.Decode(msg.Topic, msg.Payload)
	if !ok {
		a.metrics.messages.WithLabelValues("ignored").Inc()
		a.logger.Debug("ignoring message on unknown topic", "topic", msg.Topic)
		return
	}
	a.metrics.messages.WithLabelValues(ev.Category.String()).Inc()

	doc := a.store.Apply(ev, a.config.Now())
	ts := doc.LastChange(ev.Category)
	a.metrics.observe(doc)
	a.watches.notify()
	a.logger.Info("applied event",
		"topic", msg.Topic,
		"payload", string(msg.Payload),
		"category", ev.Category.String(),
		"event", ev.Kind.String(),
		"lastchange", unixSeconds(ts),
	)

	// Finish the message even if shutdown starts halfway through, but do
	// not wait forever on a broker that stopped acknowledging.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.PublishTimeout)
	defer cancel()

	o := &outcome{logger: a.logger}
	defer a.health.record(o)

	if a.checkpoint != nil {
		if err := a.checkpoint.Save(ctx, checkpointState(doc)); err != nil {
			a.metrics.checkpointFailures.Inc()
			o.fail(ctx, StageCheckpoint, Warning, "failed to save checkpoint", err)
		}
	}

	if err := a.persister.Persist(doc); err != nil {
		a.metrics.persistFailures.Inc()
		o.fail(ctx, StagePersist, Error, "failed to persist document", err)
		return
	}
	if err := a.publisher.Publish(ctx, doc, ts); err != nil {
		a.metrics.publishFailures.Inc()
		o.fail(ctx, StagePublish, Error, "failed to publish document", err)
	}
}

func checkpointState(doc Document) checkpoint.State {
	return checkpoint.State{
		LeverOpen:       doc.Lever.Open,
		LeverLastChange: doc.Lever.LastChange,
		DoorOpen:        doc.Door.Open,
		DoorLocked:      doc.Door.Locked,
		DoorLastChange:  doc.Door.LastChange,
	}
}

// restoreCheckpoint overlays the saved state, if any, onto the seeded store.
func (a *App) restoreCheckpoint(ctx context.Context) error {
	st, ok, err := a.checkpoint.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		a.logger.Info("no checkpoint yet, starting from template")
		return nil
	}
	a.store.Restore(
		LeverState{Open: st.LeverOpen, LastChange: st.LeverLastChange},
		DoorState{Open: st.DoorOpen, Locked: st.DoorLocked, LastChange: st.DoorLastChange},
	)
	a.metrics.observe(a.store.Document())
	a.logger.Info("restored checkpoint", "lever_open", st.LeverOpen, "door_open", st.DoorOpen, "door_locked", st.DoorLocked)
	return nil
}
