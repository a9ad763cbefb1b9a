package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/andrew-d/spacestatus/internal/retry"
)

const (
	defaultBuffer         = 256
	defaultConnectTimeout = 10 * time.Second
	subscribeTimeout      = 10 * time.Second
	disconnectQuiesce     = 250 // milliseconds
)

// Options configures [Dial].
type Options struct {
	// Broker is the broker address, in any form accepted by [BrokerURL].
	Broker string

	// ClientID identifies this client to the broker.
	ClientID string

	// Topics are subscribed on every (re)connect.
	Topics []string

	// SubscribeQoS is the QoS requested for every subscription.
	SubscribeQoS byte

	// KeepAlive is the MQTT keep-alive interval. Defaults to 60s.
	KeepAlive time.Duration

	// ConnectTimeout bounds a single connection attempt. Defaults to 10s.
	ConnectTimeout time.Duration

	// Buffer is the capacity of the delivery channel. Defaults to 256.
	// Messages beyond it wait in an unbounded queue.
	Buffer int

	// Retry controls the backoff between initial connection attempts.
	Retry retry.Policy

	// Logger receives connection lifecycle logs. If nil, [slog.Default] is
	// used.
	Logger *slog.Logger
}

// Client is an MQTT connection. Inbound messages on the configured topics are
// delivered on Messages in broker order; paho reconnects automatically and
// every reconnect re-issues the subscriptions.
//
// paho's router also carries the acknowledgements for our own publications,
// so the message handler never blocks on the consumer. Messages the consumer
// has not taken yet are held in backlog and fed to out by pump.
type Client struct {
	mc     mqtt.Client
	logger *slog.Logger
	topics map[string]byte
	buffer int

	mu        sync.Mutex
	backlog   []Message
	congested bool // backlog has outgrown buffer; logged once per episode
	wake      chan struct{}

	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the broker, retrying with backoff until the first
// connection succeeds or ctx is canceled.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	brokerURL, err := BrokerURL(opts.Broker)
	if err != nil {
		return nil, err
	}
	c := newClient(opts)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}

	mo := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			c.logger.Info("reconnecting to broker")
		})
	c.mc = mqtt.NewClient(mo)

	policy := opts.Retry
	if policy.OnError == nil {
		policy.OnError = func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("broker connection failed", "attempt", attempt, "retry_in", wait, "err", err)
		}
	}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		return wait(ctx, c.mc.Connect())
	})
	if err != nil {
		c.closeOnce.Do(func() { close(c.done) })
		c.mc.Disconnect(0)
		return nil, fmt.Errorf("bus: connect to %s: %w", brokerURL, err)
	}
	c.logger.Info("connected to broker", "broker", brokerURL, "client_id", opts.ClientID)
	return c, nil
}

func newClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buf := opts.Buffer
	if buf <= 0 {
		buf = defaultBuffer
	}
	topics := make(map[string]byte, len(opts.Topics))
	for _, t := range opts.Topics {
		topics[t] = opts.SubscribeQoS
	}
	c := &Client{
		logger: logger,
		topics: topics,
		buffer: buf,
		wake:   make(chan struct{}, 1),
		out:    make(chan Message, buf),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

// Messages returns the delivery channel. It is never closed; consumers stop
// on their own context.
func (c *Client) Messages() <-chan Message {
	return c.out
}

// Publish sends payload to topic and waits for the broker to complete the
// QoS handshake or for ctx to end.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if !c.mc.IsConnectionOpen() {
		return fmt.Errorf("bus: publish %s: %w", topic, ErrNotConnected)
	}
	if err := wait(ctx, c.mc.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("bus: publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker and stops delivery. Queued and later
// messages are dropped.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.mc != nil {
			c.mc.Disconnect(disconnectQuiesce)
		}
	})
	return nil
}

// ErrNotConnected is returned by Publish while the broker connection is down.
var ErrNotConnected = errors.New("not connected")

// onConnect runs on every successful (re)connect. The session is clean, so
// subscriptions must be issued again each time.
func (c *Client) onConnect(mc mqtt.Client) {
	if len(c.topics) == 0 {
		return
	}
	tok := mc.SubscribeMultiple(c.topics, c.onMessage)
	if !tok.WaitTimeout(subscribeTimeout) {
		c.logger.Error("subscribe timed out", "topics", slices.Sorted(maps.Keys(c.topics)))
		return
	}
	if err := tok.Error(); err != nil {
		c.logger.Error("subscribe failed", "topics", slices.Sorted(maps.Keys(c.topics)), "err", err)
		return
	}
	c.logger.Info("subscribed", "topics", slices.Sorted(maps.Keys(c.topics)))
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("broker connection lost", "err", err)
}

// onMessage queues the message for the consumer and returns immediately.
func (c *Client) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg := Message{Topic: m.Topic(), Payload: slices.Clone(m.Payload())}
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	c.backlog = append(c.backlog, msg)
	n := len(c.backlog)
	warn := n > c.buffer && !c.congested
	if warn {
		c.congested = true
	}
	c.mu.Unlock()

	if warn {
		c.logger.Warn("consumer is falling behind", "backlog", n)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Backlog returns the number of received messages not yet handed to out.
func (c *Client) Backlog() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backlog)
}

// pump moves queued messages to out in arrival order until Close.
func (c *Client) pump() {
	for {
		c.mu.Lock()
		if len(c.backlog) == 0 {
			c.backlog = nil
			c.congested = false
			c.mu.Unlock()
			select {
			case <-c.wake:
				continue
			case <-c.done:
				return
			}
		}
		msg := c.backlog[0]
		c.backlog[0] = Message{}
		c.backlog = c.backlog[1:]
		c.mu.Unlock()

		select {
		case c.out <- msg:
		case <-c.done:
			return
		}
	}
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
