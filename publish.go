package spacestatus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/andrew-d/spacestatus/internal/bus"
)

// Default output topics. Unlike the input topics they keep the leading slash
// that existing subscribers listen on.
const (
	DefaultJSONTopic       = "/Netz39/SpaceAPI/json"
	DefaultIsOpenTopic     = "/Netz39/SpaceAPI/isOpen"
	DefaultLastChangeTopic = "/Netz39/SpaceAPI/lastchange"
)

// Bus is the message bus the App consumes from and publishes to.
// [*bus.Client] and [*bus.Memory] implement it.
type Bus interface {
	Messages() <-chan bus.Message
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// PublishError reports a failed publication.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher emits the document and its derived values. Every publication is
// QoS 2 and retained, so a new subscriber immediately sees the last value.
type Publisher struct {
	Bus             Bus
	JSONTopic       string
	IsOpenTopic     string
	LastChangeTopic string
}

// Publish sends, in order, the serialized document, "true"/"false" for the
// lever, and now as decimal Unix seconds. It stops at the first failure and
// returns it as a [*PublishError].
func (p *Publisher) Publish(ctx context.Context, doc Document, now time.Time) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return &PublishError{Topic: p.JSONTopic, Err: err}
	}
	outputs := []struct {
		topic   string
		payload []byte
	}{
		{p.JSONTopic, data},
		{p.IsOpenTopic, []byte(strconv.FormatBool(doc.Lever.Open))},
		{p.LastChangeTopic, []byte(strconv.FormatInt(unixSeconds(now), 10))},
	}
	for _, o := range outputs {
		if err := p.Bus.Publish(ctx, o.topic, bus.ExactlyOnce, true, o.payload); err != nil {
			return &PublishError{Topic: o.topic, Err: err}
		}
	}
	return nil
}
