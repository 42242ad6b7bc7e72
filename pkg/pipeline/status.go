package pipeline

import "sort"

// ChannelStatus is a point-in-time view of one channel
type ChannelStatus struct {
	Name string `json:"name"`
	Len  int    `json:"len"`
	Cap  int    `json:"cap"`
}

// WorkerStatus is a point-in-time view of one worker type
type WorkerStatus struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Alive int    `json:"alive"`
}

// Status is a point-in-time view of the pipeline
type Status struct {
	Name          string          `json:"name"`
	RunID         string          `json:"run_id"`
	State         string          `json:"state"`
	Paused        bool            `json:"paused"`
	ExitRequested bool            `json:"exit_requested"`
	Channels      []ChannelStatus `json:"channels"`
	Workers       []WorkerStatus  `json:"workers"`
	Skipped       []string        `json:"skipped,omitempty"`
}

// Status reports the pipeline state, channel lengths and live instances
func (p *Pipeline) Status() Status {
	st := Status{
		Name:          p.name,
		RunID:         p.runID,
		State:         string(p.State()),
		Paused:        p.controller.IsPaused(),
		ExitRequested: p.controller.IsExitRequested(),
		Channels:      []ChannelStatus{},
		Workers:       []WorkerStatus{},
	}
	for _, ch := range p.Channels() {
		st.Channels = append(st.Channels, ChannelStatus{Name: ch.Name(), Len: ch.Len(), Cap: ch.Cap()})
	}
	for _, pool := range p.Pools() {
		st.Workers = append(st.Workers, WorkerStatus{
			Name:  pool.Spec().Name(),
			Count: pool.Spec().Count(),
			Alive: pool.Alive(),
		})
	}
	for name := range p.Skipped() {
		st.Skipped = append(st.Skipped, name)
	}
	sort.Strings(st.Skipped)
	return st
}
