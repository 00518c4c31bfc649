package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier publishes notifications on "<subject>.<kind>".
type NatsNotifier struct {
	conn    publisher
	subject string
	close   func()
}

// NewNatsNotifier connects to the NATS server at url.
func NewNatsNotifier(url, subject string) (*NatsNotifier, error) {
	nc, err := nats.Connect(url, nats.Name("fxledger"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsNotifier{
		conn:    nc,
		subject: subject,
		close: func() {
			_ = nc.Drain()
		},
	}, nil
}

// Send publishes the JSON-encoded message.
func (n *NatsNotifier) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject+"."+message.Kind, data); err != nil {
		return fmt.Errorf("publish to nats: %w", err)
	}
	return nil
}

// Close drains the connection.
func (n *NatsNotifier) Close() error {
	if n.close != nil {
		n.close()
	}
	return nil
}
