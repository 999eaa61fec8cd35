package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector the judge emits. It is built once and passed
// to the components that record into it.
type Registry struct {
	gatherer prometheus.Gatherer

	Verdicts          *prometheus.CounterVec
	ExecutionsTotal   *prometheus.CounterVec
	BuildDuration     prometheus.Histogram
	RunDuration       prometheus.Histogram
	TestCaseDuration  *prometheus.HistogramVec
	Throttled         prometheus.Counter
	RateLimitHits     prometheus.Counter
	CleanupTasks      *prometheus.CounterVec
	CleanupWorkers    prometheus.Gauge
	DeferredQueue     prometheus.Gauge
	ActiveDeferred    prometheus.Gauge
	NotificationsSent *prometheus.CounterVec

	factory promauto.Factory
}

func New(reg *prometheus.Registry) *Registry {
	f := promauto.With(reg)

	return &Registry{
		gatherer: reg,
		factory:  f,

		Verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "judge_verdicts_total",
				Help: "Test case verdicts by kind",
			},
			[]string{"verdict"},
		),

		ExecutionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "judge_executions_total",
				Help: "Executions staged, by language",
			},
			[]string{"language"},
		),

		BuildDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "judge_container_build_seconds",
				Help:    "Time spent building execution images",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
		),

		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "judge_container_run_seconds",
				Help:    "Time spent running one execution container",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
		),

		TestCaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "judge_test_case_duration_ms",
				Help:    "Reported execution duration of a test case in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
			},
			[]string{"language"},
		),

		Throttled: f.NewCounter(
			prometheus.CounterOpts{
				Name: "judge_throttling_total",
				Help: "Requests rejected because the judge reached its execution capacity",
			},
		),

		RateLimitHits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "judge_rate_limit_hits_total",
				Help: "Total number of requests rejected by rate limiter",
			},
		),

		CleanupTasks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "judge_cleanup_tasks_total",
				Help: "Background cleanup tasks by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		CleanupWorkers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "judge_cleanup_workers",
				Help: "Number of live background cleanup workers",
			},
		),

		DeferredQueue: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "judge_deferred_queue_depth",
				Help: "Current number of deferred executions waiting for a worker",
			},
		),

		ActiveDeferred: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "judge_deferred_active_workers",
				Help: "Number of workers currently running a deferred execution",
			},
		),

		NotificationsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "judge_notifications_total",
				Help: "Result notifications by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
	}
}

// NewInFlightGauge exposes the admission counter as a gauge read at scrape time.
func (r *Registry) NewInFlightGauge(current func() float64) prometheus.GaugeFunc {
	return r.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "judge_executions_in_flight",
			Help: "Current number of executions",
		},
		current,
	)
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.gatherer
}
