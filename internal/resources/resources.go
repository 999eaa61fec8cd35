package resources

import (
	"sync/atomic"
)

// Resources is the process-wide admission controller. The cap is soft:
// concurrent callers may both pass AllowNewExecution before either reserves.
type Resources struct {
	maxRequests int64
	maxCPUs     float64

	inFlight atomic.Int64
	peak     atomic.Int64
}

func New(maxRequests int, maxCPUs float64) *Resources {
	return &Resources{
		maxRequests: int64(maxRequests),
		maxCPUs:     maxCPUs,
	}
}

func (r *Resources) AllowNewExecution() bool {
	return r.inFlight.Load() < r.maxRequests
}

// ReserveResources must only be called after AllowNewExecution returned true.
// It returns the in-flight count including the new execution.
func (r *Resources) ReserveResources() int {
	current := r.inFlight.Add(1)

	for {
		old := r.peak.Load()
		if current <= old || r.peak.CompareAndSwap(old, current) {
			break
		}
	}

	return int(current)
}

// Cleanup releases one reserved slot. Callers defer it right after a
// successful ReserveResources.
func (r *Resources) Cleanup() {
	r.inFlight.Add(-1)
}

func (r *Resources) NumberOfExecutions() int {
	return int(r.inFlight.Load())
}

func (r *Resources) MaxRequests() int {
	return int(r.maxRequests)
}

// MaxCPUs is the CPU share handed to each execution container.
func (r *Resources) MaxCPUs() float64 {
	return r.maxCPUs
}

// Peak is the highest in-flight count observed since start.
func (r *Resources) Peak() int {
	return int(r.peak.Load())
}
