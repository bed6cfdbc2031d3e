package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Notice is the cross-instance message sent for every committed change. Receivers
// reload the room from the shared store rather than trusting the payload.
type Notice struct {
	Origin   string `json:"origin"`
	Type     Type   `json:"type"`
	RoomCode string `json:"roomCode"`
	Version  int64  `json:"version"`
}

// NATSNotifier publishes a Notice per event on <prefix>.<ROOMCODE> and delivers
// notices from other instances to a handler.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
	origin string
	logger *logrus.Logger
	sub    *nats.Subscription
}

// ConnectNATS dials the server at url. The returned notifier owns the connection.
func ConnectNATS(url, prefix string, logger *logrus.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(url, nats.Name("oichokabu"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSNotifier{
		conn:   nc,
		prefix: strings.TrimSuffix(prefix, "."),
		origin: uuid.NewString(),
		logger: logger,
	}, nil
}

func (n *NATSNotifier) subject(code string) string {
	return n.prefix + "." + code
}

// Publish sends a notice for ev.
func (n *NATSNotifier) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(Notice{
		Origin:   n.origin,
		Type:     ev.Type,
		RoomCode: ev.RoomCode,
		Version:  ev.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	if err := n.conn.Publish(n.subject(ev.RoomCode), data); err != nil {
		return fmt.Errorf("failed to publish notice for room %s: %w", ev.RoomCode, err)
	}
	return nil
}

// Subscribe calls handle for every notice published by another instance.
func (n *NATSNotifier) Subscribe(handle func(Notice)) error {
	sub, err := n.conn.Subscribe(n.prefix+".*", func(msg *nats.Msg) {
		var notice Notice
		if err := json.Unmarshal(msg.Data, &notice); err != nil {
			n.logger.Warnf("invalid room notice on %s: %v", msg.Subject, err)
			return
		}
		if notice.Origin == n.origin {
			return
		}
		handle(notice)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s.*: %w", n.prefix, err)
	}
	n.sub = sub
	return nil
}

// Close drains the subscription and the connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}
