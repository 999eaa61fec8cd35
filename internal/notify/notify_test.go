package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/notify"
	"github.com/itstheanurag/judge/internal/strategy"
	"github.com/itstheanurag/judge/internal/verdict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func event() notify.Event {
	return notify.Event{
		ExecutionID: "e1",
		Result: &strategy.Response{
			Verdict:         verdict.Accepted,
			TestCasesResult: strategy.NewResults(),
			DateTime:        time.Now(),
		},
	}
}

func TestWebhookPostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	wh := notify.NewWebhook(time.Second, &logger, m)

	require.NoError(t, wh.Send(context.Background(), srv.URL, event()))
	assert.Equal(t, "e1", got["executionId"])
	result, ok := got["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Accepted", result["verdict"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("webhook", "ok")))
}

func TestWebhookRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	wh := notify.NewWebhook(time.Second, &logger, m)

	err := wh.Send(context.Background(), srv.URL, event())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("webhook", "rejected")))
}

func TestDispatcherPublishFailureDoesNotBlockDelivery(t *testing.T) {
	delivered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		delivered <- struct{}{}
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	pub := &recordingPublisher{err: errors.New("nats down")}
	d := notify.NewDispatcher(notify.NewWebhook(time.Second, &logger, m), pub, &logger)

	require.NoError(t, d.Deliver(context.Background(), srv.URL, event()))
	assert.Len(t, delivered, 1)
	assert.Len(t, pub.events, 1)
}

func TestNatsPublisher(t *testing.T) {
	url := os.Getenv("JUDGE_TEST_NATS_URL")
	if url == "" {
		t.Skip("JUDGE_TEST_NATS_URL not set")
	}
	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())

	p, err := notify.NewNatsPublisher(url, "judge.test", &logger, m)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), event()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("nats", "ok")))
}
