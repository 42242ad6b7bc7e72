package prometheus

import (
	"errors"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/worker"
)

// WorkerObserver records pool lifecycle events. Pass it to a pool with
// worker.WithObserver.
type WorkerObserver struct {
	m *Metrics
}

// NewWorkerObserver creates a WorkerObserver
func NewWorkerObserver(m *Metrics) *WorkerObserver {
	return &WorkerObserver{m: m}
}

// InstanceStarted implements worker.Observer
func (o *WorkerObserver) InstanceStarted(spec string, _ int) {
	o.m.WorkerStarts.WithLabelValues(spec).Inc()
	o.m.WorkersRunning.WithLabelValues(spec).Inc()
}

// InstanceStopped implements worker.Observer
func (o *WorkerObserver) InstanceStopped(spec string, _ int, err error) {
	o.m.WorkersRunning.WithLabelValues(spec).Dec()

	outcome := "ok"
	switch {
	case errors.Is(err, worker.ErrInstanceCrashed):
		outcome = "crashed"
	case err != nil:
		outcome = "error"
	}
	o.m.WorkerExits.WithLabelValues(spec, outcome).Inc()
}

var _ worker.Observer = (*WorkerObserver)(nil)
