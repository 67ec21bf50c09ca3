package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is the subset of *nats.Conn the sink uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes every event on one subject, keeping registry order.
type NATSSink struct {
	conn    natsConn
	subject string
}

// NewNATSSink connects to url. Reconnects are unbounded; publishes during an
// outage are buffered by the client.
func NewNATSSink(url, subject string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := nats.Connect(url,
		nats.Name("bmad"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (n *NATSSink) Name() string { return "nats" }

func (n *NATSSink) Publish(_ context.Context, payload []byte) error {
	return n.conn.Publish(n.subject, payload)
}

// Close drains pending publishes before closing.
func (n *NATSSink) Close() error { return n.conn.Drain() }
