package prometheus

import (
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/fsm"
)

// StateHook returns a transition callback that keeps pipeline_state at 1
// for the current state of the named pipeline and 0 for the previous one.
// It fits pipeline.Config.OnTransition.
func StateHook(m *Metrics, pipeline string) func(from, to fsm.State) {
	return func(from, to fsm.State) {
		m.PipelineState.WithLabelValues(pipeline, string(from)).Set(0)
		m.PipelineState.WithLabelValues(pipeline, string(to)).Set(1)
	}
}
