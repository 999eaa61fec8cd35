package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/strategy"
	"github.com/rs/zerolog"
)

// Event is the payload sent when an execution finishes.
type Event struct {
	ExecutionID string             `json:"executionId"`
	Result      *strategy.Response `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Publisher broadcasts finished executions. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

func NopPublisher() Publisher { return nopPublisher{} }

// Webhook POSTs events to the URL registered for an execution.
type Webhook struct {
	client  *http.Client
	logger  *zerolog.Logger
	metrics *metrics.Registry
}

func NewWebhook(timeout time.Duration, logger *zerolog.Logger, m *metrics.Registry) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: m,
	}
}

func (w *Webhook) Send(ctx context.Context, callbackURL string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.metrics.NotificationsSent.WithLabelValues("webhook", "error").Inc()
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		w.metrics.NotificationsSent.WithLabelValues("webhook", "rejected").Inc()
		return fmt.Errorf("webhook %s answered %d", callbackURL, resp.StatusCode)
	}

	w.metrics.NotificationsSent.WithLabelValues("webhook", "ok").Inc()
	w.logger.Debug().Str("execution_id", ev.ExecutionID).Str("url", callbackURL).Msg("webhook delivered")
	return nil
}

// Dispatcher delivers a deferred result to its webhook and broadcasts it.
type Dispatcher struct {
	webhook   *Webhook
	publisher Publisher
	logger    *zerolog.Logger
}

func NewDispatcher(webhook *Webhook, publisher Publisher, logger *zerolog.Logger) *Dispatcher {
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &Dispatcher{webhook: webhook, publisher: publisher, logger: logger}
}

// Deliver sends ev to callbackURL. A failed broadcast is logged only.
func (d *Dispatcher) Deliver(ctx context.Context, callbackURL string, ev Event) error {
	d.Publish(ctx, ev)
	return d.webhook.Send(ctx, callbackURL, ev)
}

func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.logger.Warn().Err(err).Str("execution_id", ev.ExecutionID).Msg("failed to publish execution event")
	}
}
