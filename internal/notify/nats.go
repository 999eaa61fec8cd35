package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NatsPublisher publishes every finished execution on a subject.
type NatsPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zerolog.Logger
	metrics *metrics.Registry
}

func NewNatsPublisher(url, subject string, logger *zerolog.Logger, m *metrics.Registry) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("judge"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NatsPublisher{conn: conn, subject: subject, logger: logger, metrics: m}, nil
}

func (p *NatsPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.metrics.NotificationsSent.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	p.metrics.NotificationsSent.WithLabelValues("nats", "ok").Inc()
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("nats drain failed")
		p.conn.Close()
	}
}
