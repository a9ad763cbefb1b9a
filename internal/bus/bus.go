// Package bus connects spacestatus to its publish/subscribe transport. It
// provides an MQTT client built on paho and an in-memory bus with the same
// delivery semantics for tests.
package bus

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Message is an inbound message delivered to the consumer.
type Message struct {
	Topic   string
	Payload []byte
}

// QoS levels as defined by MQTT.
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
	ExactlyOnce byte = 2
)

// DefaultPort is the MQTT port used when the broker address has none.
const DefaultPort = "1883"

// BrokerURL normalizes a broker address into the URL form paho expects.
// It accepts a bare host ("mqtt.n39.eu"), a host and port ("helium:1884") or
// a full URL ("ssl://broker:8883"). A missing scheme means tcp and a missing
// port means [DefaultPort].
func BrokerURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("bus: empty broker address")
	}
	if !strings.Contains(addr, "://") {
		addr = "tcp://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("bus: parse broker address: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("bus: broker address %q has no host", addr)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return "", fmt.Errorf("bus: unsupported broker scheme %q", u.Scheme)
	}
	if u.Port() == "" && (u.Scheme == "tcp" || u.Scheme == "mqtt") {
		u.Host = net.JoinHostPort(u.Hostname(), DefaultPort)
	}
	return u.String(), nil
}
