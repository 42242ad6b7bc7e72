package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
)

// ErrPoolStarted is returned by Start on a pool that was already started
var ErrPoolStarted = errors.New("worker pool already started")

// LoggerFactory builds the private logger of one instance
type LoggerFactory func(name string) (core.Logger, error)

// Option configures a Pool
type Option func(*Pool)

// WithLauncher sets how instances are launched. Default: GoroutineLauncher.
func WithLauncher(l Launcher) Option {
	return func(p *Pool) {
		if l != nil {
			p.launcher = l
		}
	}
}

// WithObserver sets the lifecycle observer
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithLoggerFactory sets the per-instance logger factory.
// Default: core.NewWorkerLogger with core.DefaultLogConfig().
func WithLoggerFactory(f LoggerFactory) Option {
	return func(p *Pool) {
		if f != nil {
			p.loggerFactory = f
		}
	}
}

// Pool owns the live instances of one Spec.
// Handles go from empty at creation, to populated by Start, to empty
// again after Join.
type Pool struct {
	spec          *Spec
	logger        core.Logger
	launcher      Launcher
	observer      Observer
	loggerFactory LoggerFactory

	mu      sync.Mutex
	started bool
	handles []*Handle
}

// NewPool wraps a validated spec. It fails only when spec is nil.
func NewPool(spec *Spec, logger core.Logger, opts ...Option) (*Pool, error) {
	if spec == nil {
		return nil, &core.Error{Code: core.CodeInvalidArgument, Message: "spec is required"}
	}
	if logger == nil {
		logger = core.NewNopLogger()
	}

	p := &Pool{
		spec:     spec,
		logger:   logger,
		launcher: GoroutineLauncher{},
		observer: nopObserver{},
		loggerFactory: func(name string) (core.Logger, error) {
			return core.NewWorkerLogger(core.DefaultLogConfig(), name)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Spec returns the pool's spec
func (p *Pool) Spec() *Spec {
	return p.spec
}

// Start launches exactly Count instances. If a launch fails, the instances
// already launched keep running and Join still waits for them.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted
	}
	p.started = true

	for i := 0; i < p.spec.count; i++ {
		h, err := p.launcher.Launch(ctx, p, i)
		if err != nil {
			p.logger.Errorf("worker %s: launch instance %d failed: %v", p.spec.name, i, err)
			return fmt.Errorf("launch %s instance %d: %w", p.spec.name, i, err)
		}
		p.handles = append(p.handles, h)
		p.observer.InstanceStarted(p.spec.name, i)
		go p.watch(h)
	}

	p.logger.Infof("worker %s: started %d instance(s)", p.spec.name, p.spec.count)
	return nil
}

func (p *Pool) watch(h *Handle) {
	err := h.Wait()
	if err != nil {
		p.logger.Errorf("worker %s: instance %s terminated: %v", p.spec.name, h.ID(), err)
	} else {
		p.logger.Debugf("worker %s: instance %s terminated", p.spec.name, h.ID())
	}
	p.observer.InstanceStopped(p.spec.name, h.Index(), err)
}

// Join blocks until every launched instance has terminated, then clears the
// handles. Crashed instances are reported in the returned error.
// Join before Start returns nil at once.
func (p *Pool) Join() error {
	p.mu.Lock()
	handles := p.handles
	p.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.ID(), err))
		}
	}

	p.mu.Lock()
	p.handles = nil
	p.mu.Unlock()

	return errors.Join(errs...)
}

// Handles returns a snapshot of the live handles
func (p *Pool) Handles() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Handle(nil), p.handles...)
}

// Alive returns the number of launched instances still running
func (p *Pool) Alive() int {
	n := 0
	for _, h := range p.Handles() {
		if h.Alive() {
			n++
		}
	}
	return n
}

// InstanceName returns the name of instance index in process pid
func (p *Pool) InstanceName(index, pid int) string {
	return fmt.Sprintf("%s_%d_%d", p.spec.name, index, pid)
}

// RunInstance runs instance index on the calling goroutine until the entry
// returns. A panic escaping the entry is converted into ErrInstanceCrashed.
func (p *Pool) RunInstance(ctx context.Context, index int) (err error) {
	if index < 0 || index >= p.spec.count {
		return &core.Error{Code: core.CodeInvalidArgument, Message: fmt.Sprintf("%s has no instance %d", p.spec.name, index)}
	}

	pid := os.Getpid()
	name := p.InstanceName(index, pid)
	logger, err := p.loggerFactory(name)
	if err != nil {
		return fmt.Errorf("%s: create logger: %w", name, err)
	}
	defer logger.Sync()

	env := &Env{
		Name:       name,
		Spec:       p.spec.name,
		Index:      index,
		PID:        pid,
		Inputs:     p.spec.Inputs(),
		Outputs:    p.spec.Outputs(),
		Controller: p.spec.controller,
		Logger:     logger,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("crashed: %v", r)
			err = fmt.Errorf("%w: %v", ErrInstanceCrashed, r)
		}
	}()

	logger.Info("worker started")
	err = p.spec.entry.run(ctx, p.spec.args, env)
	if err != nil {
		logger.Errorf("worker stopped with error: %v", err)
	} else {
		logger.Info("worker stopped")
	}
	return err
}
