package queue

import (
	"time"

	"github.com/itstheanurag/judge/internal/apperr"
	"github.com/itstheanurag/judge/internal/execution"
	"github.com/itstheanurag/judge/internal/metrics"
)

// Job is a staged execution whose result goes to a callback instead of the
// HTTP response.
type Job struct {
	ID          string
	Execution   *execution.Execution
	CallbackURL string
	DeleteImage bool
	Enqueued    time.Time
}

type Manager struct {
	jobQueue chan *Job
	metrics  *metrics.Registry
}

func NewManager(capacity int, m *metrics.Registry) *Manager {
	return &Manager{
		jobQueue: make(chan *Job, capacity),
		metrics:  m,
	}
}

// Submit never blocks. A full queue is reported as Throttled so the caller
// backs off the same way it does for admission.
func (m *Manager) Submit(job *Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now()
	}
	select {
	case m.jobQueue <- job:
		m.UpdateQueueMetric()
		return nil
	default:
		return apperr.Throttled("Request has been throttled, deferred execution queue is full")
	}
}

func (m *Manager) NextJob() <-chan *Job {
	return m.jobQueue
}

func (m *Manager) Len() int {
	return len(m.jobQueue)
}

func (m *Manager) UpdateQueueMetric() {
	m.metrics.DeferredQueue.Set(float64(len(m.jobQueue)))
}
