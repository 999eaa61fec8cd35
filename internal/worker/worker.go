package worker

import (
	"context"
	"time"

	"github.com/itstheanurag/judge/internal/execution"
	"github.com/itstheanurag/judge/internal/hooks"
	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/notify"
	"github.com/itstheanurag/judge/internal/queue"
	"github.com/itstheanurag/judge/internal/strategy"
	"github.com/rs/zerolog"
)

type Runner interface {
	Run(ctx context.Context, e *execution.Execution, deleteImage bool) (*strategy.Response, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, callbackURL string, ev notify.Event) error
}

// Worker runs deferred executions and pushes their results to the registered
// callback.
type Worker struct {
	id        int
	runner    Runner
	manager   *queue.Manager
	deliverer Deliverer
	hooks     hooks.Store
	metrics   *metrics.Registry
	logger    *zerolog.Logger
}

func NewWorker(id int, runner Runner, manager *queue.Manager, deliverer Deliverer, store hooks.Store, m *metrics.Registry, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:        id,
		runner:    runner,
		manager:   manager,
		deliverer: deliverer,
		hooks:     store,
		metrics:   m,
		logger:    logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			w.manager.UpdateQueueMetric()
			w.metrics.ActiveDeferred.Inc()
			w.processJob(ctx, job)
			w.metrics.ActiveDeferred.Dec()
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	log := w.logger.With().Int("worker_id", w.id).Str("execution_id", job.ID).Logger()
	log.Info().Dur("waited", time.Since(job.Enqueued)).Msg("processing deferred execution")

	defer func() {
		if err := job.Execution.RemoveDirectory(); err != nil {
			log.Warn().Err(err).Msg("failed to remove execution directory")
		}
	}()

	ev := notify.Event{ExecutionID: job.ID}
	resp, err := w.runner.Run(context.WithoutCancel(ctx), job.Execution, job.DeleteImage)
	if err != nil {
		log.Error().Err(err).Msg("deferred execution failed")
		ev.Error = err.Error()
	} else {
		ev.Result = resp
	}

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := w.deliverer.Deliver(deliverCtx, job.CallbackURL, ev); err != nil {
		log.Warn().Err(err).Str("url", job.CallbackURL).Msg("failed to deliver execution result")
	}
	if err := w.hooks.Remove(deliverCtx, job.ID); err != nil {
		log.Warn().Err(err).Msg("failed to remove callback registration")
	}
}
