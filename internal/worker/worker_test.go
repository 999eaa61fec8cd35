package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/itstheanurag/judge/internal/execution"
	"github.com/itstheanurag/judge/internal/hooks"
	"github.com/itstheanurag/judge/internal/languages"
	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/notify"
	"github.com/itstheanurag/judge/internal/queue"
	"github.com/itstheanurag/judge/internal/strategy"
	"github.com/itstheanurag/judge/internal/verdict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	resp *strategy.Response
	err  error
}

func (s stubRunner) Run(context.Context, *execution.Execution, bool) (*strategy.Response, error) {
	return s.resp, s.err
}

type delivery struct {
	url string
	ev  notify.Event
}

type recordingDeliverer struct {
	mu   sync.Mutex
	sent []delivery
	done chan struct{}
}

func (d *recordingDeliverer) Deliver(_ context.Context, url string, ev notify.Event) error {
	d.mu.Lock()
	d.sent = append(d.sent, delivery{url: url, ev: ev})
	d.mu.Unlock()
	d.done <- struct{}{}
	return nil
}

func stagedExecution(t *testing.T) *execution.Execution {
	t.Helper()
	lang, err := languages.NewRegistry().Get("C")
	require.NoError(t, err)
	e := execution.NewWithID("job-1", execution.Options{
		Workdir:   t.TempDir(),
		Language:  lang,
		TimeLimit: 1,
		TestCases: []*execution.TestCase{execution.NewTestCase("t1", "", "")},
	})
	require.NoError(t, e.Stage())
	return e
}

func runJob(t *testing.T, runner Runner) (*recordingDeliverer, *hooks.MemoryStore, *execution.Execution) {
	t.Helper()
	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	store := hooks.NewMemoryStore(time.Hour)
	q := queue.NewManager(1, m)
	d := &recordingDeliverer{done: make(chan struct{}, 1)}

	e := stagedExecution(t)
	require.NoError(t, store.Register(context.Background(), e.ID, "http://example.com/cb"))
	require.NoError(t, q.Submit(&queue.Job{ID: e.ID, Execution: e, CallbackURL: "http://example.com/cb"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(1, runner, q, d, store, m, &logger)
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not delivered")
	}
	cancel()
	<-stopped
	return d, store, e
}

func TestWorkerDeliversResult(t *testing.T) {
	resp := &strategy.Response{Verdict: verdict.Accepted, TestCasesResult: strategy.NewResults()}
	d, store, e := runJob(t, stubRunner{resp: resp})

	require.Len(t, d.sent, 1)
	assert.Equal(t, "http://example.com/cb", d.sent[0].url)
	assert.Equal(t, "job-1", d.sent[0].ev.ExecutionID)
	assert.Same(t, resp, d.sent[0].ev.Result)
	assert.Empty(t, d.sent[0].ev.Error)

	require.Eventually(t, func() bool {
		ok, _ := store.Contains(context.Background(), "job-1")
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.NoDirExists(t, e.Path)
}

func TestWorkerDeliversFailure(t *testing.T) {
	d, _, _ := runJob(t, stubRunner{err: errors.New("docker daemon unavailable")})

	require.Len(t, d.sent, 1)
	assert.Nil(t, d.sent[0].ev.Result)
	assert.Equal(t, "docker daemon unavailable", d.sent[0].ev.Error)
}

type ctxRecordingRunner struct {
	ctxErr error
}

func (r *ctxRecordingRunner) Run(ctx context.Context, _ *execution.Execution, _ bool) (*strategy.Response, error) {
	r.ctxErr = ctx.Err()
	return &strategy.Response{Verdict: verdict.Accepted, TestCasesResult: strategy.NewResults()}, nil
}

func TestStoppingWorkerDoesNotCancelRunningJob(t *testing.T) {
	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	store := hooks.NewMemoryStore(time.Hour)
	d := &recordingDeliverer{done: make(chan struct{}, 1)}
	runner := &ctxRecordingRunner{}

	e := stagedExecution(t)
	w := NewWorker(1, runner, queue.NewManager(1, m), d, store, m, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.processJob(ctx, &queue.Job{ID: e.ID, Execution: e, CallbackURL: "http://example.com/cb", Enqueued: time.Now()})

	assert.NoError(t, runner.ctxErr)
	require.Len(t, d.sent, 1)
	assert.NotNil(t, d.sent[0].ev.Result)
	assert.NoDirExists(t, e.Path)
}
