package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBroker publishes events as JSON on core NATS subjects.
// Events are fire-and-forget: a client that is not subscribed misses them and
// catches up with a regular list call.
type NATSBroker struct {
	conn *nats.Conn
	log  *slog.Logger
}

// NewNATSBroker connects to the NATS endpoint at url.
func NewNATSBroker(url string, log *slog.Logger, opts ...nats.Option) (*NATSBroker, error) {
	opts = append([]nats.Option{nats.Name("buildermatch")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSBroker{conn: nc, log: log}, nil
}

func (b *NATSBroker) Publish(ctx context.Context, topic string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(topic, data)
}

func (b *NATSBroker) Subscribe(topic string, fn func(Event)) (func() error, error) {
	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Warn("dropping undecodable event", "subject", msg.Subject, "err", err)
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// Close drains in-flight messages before closing the connection.
func (b *NATSBroker) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
