package worker

import (
	"fmt"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
)

// SpecConfig describes one worker type before validation.
type SpecConfig struct {
	// Name identifies the worker type. Restricted to [A-Za-z0-9_-].
	Name string

	// Count is the number of instances to run. Must be >= 1.
	Count int

	// Entry is the instance body. Must not be the zero Entry.
	Entry Entry

	// Args is the static argument bundle; must match Entry's argument type.
	Args any

	Inputs  []concurrency.Channel
	Outputs []concurrency.Channel

	// Controller is polled by every instance. Required.
	Controller concurrency.Controller

	// Logger receives construction diagnostics. Default: no-op.
	Logger core.Logger
}

// Spec is a validated, immutable description of one worker type.
type Spec struct {
	name       string
	count      int
	entry      Entry
	args       any
	inputs     []concurrency.Channel
	outputs    []concurrency.Channel
	controller concurrency.Controller
	logger     core.Logger
}

// NewSpec validates cfg. Failure is reported as (nil, err) and never
// panics, so callers can skip a worker type and keep wiring the rest.
func NewSpec(cfg SpecConfig) (*Spec, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = core.NewNopLogger()
	}

	if err := validateSpec(cfg); err != nil {
		logger.Errorf("worker spec %q rejected: %v", cfg.Name, err)
		return nil, err
	}

	return &Spec{
		name:       cfg.Name,
		count:      cfg.Count,
		entry:      cfg.Entry,
		args:       cfg.Args,
		inputs:     append([]concurrency.Channel(nil), cfg.Inputs...),
		outputs:    append([]concurrency.Channel(nil), cfg.Outputs...),
		controller: cfg.Controller,
		logger:     logger,
	}, nil
}

func validateSpec(cfg SpecConfig) error {
	if err := core.ValidateName(cfg.Name); err != nil {
		return err
	}
	if err := core.ValidateCount(cfg.Count); err != nil {
		return err
	}
	if cfg.Entry.IsZero() {
		return &core.Error{Code: core.CodeInvalidArgument, Message: "entry is required"}
	}
	if err := cfg.Entry.check(cfg.Args); err != nil {
		return err
	}
	for i, ch := range cfg.Inputs {
		if ch == nil {
			return &core.Error{Code: core.CodeInvalidArgument, Message: fmt.Sprintf("input %d is nil", i)}
		}
	}
	for i, ch := range cfg.Outputs {
		if ch == nil {
			return &core.Error{Code: core.CodeInvalidArgument, Message: fmt.Sprintf("output %d is nil", i)}
		}
	}
	if cfg.Controller == nil {
		return &core.Error{Code: core.CodeInvalidArgument, Message: "controller is required"}
	}
	return nil
}

// Name returns the worker type name
func (s *Spec) Name() string { return s.name }

// Count returns the number of instances
func (s *Spec) Count() int { return s.count }

// Entry returns the entry point
func (s *Spec) Entry() Entry { return s.entry }

// Args returns the static argument bundle
func (s *Spec) Args() any { return s.args }

// Inputs returns a copy of the input channels
func (s *Spec) Inputs() []concurrency.Channel {
	return append([]concurrency.Channel(nil), s.inputs...)
}

// Outputs returns a copy of the output channels
func (s *Spec) Outputs() []concurrency.Channel {
	return append([]concurrency.Channel(nil), s.outputs...)
}

// Controller returns the controller
func (s *Spec) Controller() concurrency.Controller { return s.controller }

// Logger returns the construction logger
func (s *Spec) Logger() core.Logger { return s.logger }
