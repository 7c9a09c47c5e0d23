package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const flushTimeout = 2 * time.Second

// NATSChannel publishes alerts as JSON on a subject so other services (the
// mail relay, the records backend) can react to them.
type NATSChannel struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// NewNATSChannel wraps an existing connection. The caller keeps ownership.
func NewNATSChannel(conn *nats.Conn, subject string) *NATSChannel {
	return &NATSChannel{conn: conn, subject: subject}
}

// DialNATSChannel connects to url and reconnects forever in the background.
func DialNATSChannel(url, subject string, logger zerolog.Logger) (*NATSChannel, error) {
	log := logger.With().Str("component", "nats").Logger()
	conn, err := nats.Connect(url,
		nats.Name("rotations-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NATSChannel{conn: conn, subject: subject, owned: true}, nil
}

func (c *NATSChannel) Name() string { return "nats" }

func (c *NATSChannel) Deliver(ctx context.Context, a *Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := nats.NewMsg(c.subject)
	msg.Data = data
	msg.Header.Set("Alert-ID", a.ID)
	msg.Header.Set("Template", a.TemplateID)
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", c.subject, err)
	}
	// Flush so a publish to a dead server surfaces here instead of vanishing.
	if _, ok := ctx.Deadline(); !ok {
		err = c.conn.FlushTimeout(flushTimeout)
	} else {
		err = c.conn.FlushWithContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("flush %s: %w", c.subject, err)
	}
	return nil
}

// Close drains the connection if this channel opened it.
func (c *NATSChannel) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Drain()
}
