package bus

import (
	"context"
	"slices"
	"sync"
)

// Publication records one call to [Memory.Publish].
type Publication struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Memory is an in-process bus. Messages injected with Deliver are handed to
// the consumer in order, and retained publications are kept per topic the way
// a broker keeps them for late subscribers.
type Memory struct {
	out chan Message

	mu         sync.Mutex
	retained   map[string][]byte
	published  []Publication
	publishErr error
}

// NewMemory returns an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{
		out:      make(chan Message, 64),
		retained: make(map[string][]byte),
	}
}

// Messages returns the delivery channel. It is never closed.
func (m *Memory) Messages() <-chan Message {
	return m.out
}

// Backlog returns the number of delivered messages not yet consumed.
func (m *Memory) Backlog() int {
	return len(m.out)
}

// Deliver hands a message to the consumer as though the broker routed it. It
// blocks while the delivery buffer is full.
func (m *Memory) Deliver(ctx context.Context, topic string, payload []byte) error {
	select {
	case m.out <- Message{Topic: topic, Payload: slices.Clone(payload)}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish records the publication. Retained publications replace the last
// known value of the topic. If an error was set with SetPublishError, Publish
// returns it and records nothing.
func (m *Memory) Publish(_ context.Context, topic string, qos byte, retained bool, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	p := Publication{Topic: topic, QoS: qos, Retained: retained, Payload: slices.Clone(payload)}
	m.published = append(m.published, p)
	if retained {
		m.retained[topic] = p.Payload
	}
	return nil
}

// SetPublishError makes every later Publish fail with err until it is reset
// with nil.
func (m *Memory) SetPublishError(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

// Retained returns the last retained payload for topic, which is what a new
// subscriber would receive first.
func (m *Memory) Retained(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.retained[topic]
	return slices.Clone(p), ok
}

// Published returns every recorded publication in order.
func (m *Memory) Published() []Publication {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.published)
}
