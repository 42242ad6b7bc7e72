package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/fsm"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/worker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Lifecycle states
const (
	StateIdle          fsm.State = "IDLE"
	StateRunning       fsm.State = "RUNNING"
	StateExitRequested fsm.State = "EXIT_REQUESTED"
	StateDraining      fsm.State = "DRAINING"
	StateJoined        fsm.State = "JOINED"
)

const (
	eventStart fsm.Event = "start"
	eventExit  fsm.Event = "request_exit"
	eventDrain fsm.Event = "drain"
	eventJoin  fsm.Event = "join"
)

var (
	// ErrNotIdle is returned when wiring or starting a pipeline that already started
	ErrNotIdle = errors.New("pipeline is not idle")

	// ErrUnknownWorker is returned by RunWorker for a worker type that was never added
	ErrUnknownWorker = errors.New("unknown worker")
)

// Config configures a Pipeline.
type Config struct {
	// Name identifies the pipeline in logs, traces and metrics. Default: "pipeline".
	Name string

	// RunID identifies this run. Default: a random UUID.
	RunID string

	// Backend creates the channels and the controller. Required.
	Backend concurrency.Backend

	// Logger is the orchestrator's logger. Default: core.NewDefaultLogger().
	Logger core.Logger

	// PoolOptions are applied to every worker pool.
	PoolOptions []worker.Option

	// WrapChannel decorates every channel at creation, e.g. with metrics.
	WrapChannel func(concurrency.Channel) concurrency.Channel

	// OnTransition is called after every lifecycle transition.
	OnTransition func(from, to fsm.State)

	// Tracer traces the shutdown protocol. Default: otel.Tracer("pipeline").
	Tracer trace.Tracer
}

// Pipeline is the orchestrator-owned registry of one run: its controller,
// its channels in creation order and its worker pools in registration order.
// Channels must be created sources first; Shutdown drains them in reverse.
type Pipeline struct {
	name       string
	runID      string
	backend    concurrency.Backend
	logger     core.Logger
	tracer     trace.Tracer
	poolOpts   []worker.Option
	wrap       func(concurrency.Channel) concurrency.Channel
	controller concurrency.Controller
	sm         *fsm.StateMachine
	state      atomic.Value // fsm.State

	mu       sync.Mutex
	channels []concurrency.Channel
	byName   map[string]concurrency.Channel
	pools    []*worker.Pool
	skipped  map[string]error
	report   *ShutdownReport
}

// New creates an idle pipeline and its controller.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Backend == nil {
		return nil, &core.Error{Code: core.CodeInvalidArgument, Message: "backend is required"}
	}
	if cfg.Name == "" {
		cfg.Name = "pipeline"
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewDefaultLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("pipeline")
	}

	ctrl, err := cfg.Backend.NewController()
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}

	p := &Pipeline{
		name:       cfg.Name,
		runID:      cfg.RunID,
		backend:    cfg.Backend,
		logger:     cfg.Logger.With("pipeline", cfg.Name, "run_id", cfg.RunID),
		tracer:     cfg.Tracer,
		poolOpts:   cfg.PoolOptions,
		wrap:       cfg.WrapChannel,
		controller: ctrl,
		byName:     make(map[string]concurrency.Channel),
		skipped:    make(map[string]error),
	}
	if p.sm, err = p.newStateMachine(cfg.OnTransition); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the pipeline name
func (p *Pipeline) Name() string { return p.name }

// RunID returns the run id
func (p *Pipeline) RunID() string { return p.runID }

// Controller returns the run's controller
func (p *Pipeline) Controller() concurrency.Controller { return p.controller }

// State returns the lifecycle state
func (p *Pipeline) State() fsm.State { return p.state.Load().(fsm.State) }

// NewChannel creates and registers a channel. Call it in pipeline order,
// sources first.
func (p *Pipeline) NewChannel(name string, capacity int, codec core.Codec) (concurrency.Channel, error) {
	if p.State() != StateIdle {
		return nil, ErrNotIdle
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byName[name]; ok {
		return nil, &core.Error{Code: core.CodeInvalidName, Message: fmt.Sprintf("channel %s already exists", name)}
	}

	ch, err := p.backend.NewChannel(name, capacity, codec)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}
	if p.wrap != nil {
		ch = p.wrap(ch)
	}

	p.channels = append(p.channels, ch)
	p.byName[name] = ch
	p.logger.Debugf("channel %s created (capacity %d)", name, capacity)
	return ch, nil
}

// Channel looks up a registered channel
func (p *Pipeline) Channel(name string) (concurrency.Channel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.byName[name]
	return ch, ok
}

// Channels returns the channels in creation order
func (p *Pipeline) Channels() []concurrency.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]concurrency.Channel(nil), p.channels...)
}

// AddWorker validates cfg and registers a pool for it. The pipeline's
// controller is used when cfg.Controller is nil. A worker type that fails
// validation is logged, remembered as skipped and reported through the
// error; the rest of the pipeline can still be wired and run.
func (p *Pipeline) AddWorker(cfg worker.SpecConfig, opts ...worker.Option) (*worker.Pool, error) {
	if p.State() != StateIdle {
		return nil, ErrNotIdle
	}
	if cfg.Controller == nil {
		cfg.Controller = p.controller
	}
	if cfg.Logger == nil {
		cfg.Logger = p.logger
	}

	spec, err := worker.NewSpec(cfg)
	if err == nil {
		err = p.checkUnique(cfg.Name)
	}
	if err != nil {
		p.skip(cfg.Name, err)
		return nil, err
	}

	pool, err := worker.NewPool(spec, p.logger, append(append([]worker.Option(nil), p.poolOpts...), opts...)...)
	if err != nil {
		p.skip(cfg.Name, err)
		return nil, err
	}

	p.mu.Lock()
	p.pools = append(p.pools, pool)
	p.mu.Unlock()
	return pool, nil
}

func (p *Pipeline) checkUnique(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pool := range p.pools {
		if pool.Spec().Name() == name {
			return &core.Error{Code: core.CodeInvalidName, Message: fmt.Sprintf("worker %s already exists", name)}
		}
	}
	return nil
}

func (p *Pipeline) skip(name string, err error) {
	p.logger.Warnf("worker %s skipped: %v", name, err)
	p.mu.Lock()
	p.skipped[name] = err
	p.mu.Unlock()
}

// Skipped returns the worker types that failed construction
func (p *Pipeline) Skipped() map[string]error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]error, len(p.skipped))
	for k, v := range p.skipped {
		out[k] = v
	}
	return out
}

// Pools returns the pools in registration order
func (p *Pipeline) Pools() []*worker.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*worker.Pool(nil), p.pools...)
}

// Start starts every pool in registration order. A pool that fails to
// start is logged and reported; the others keep running and Shutdown
// still applies to all of them.
func (p *Pipeline) Start(ctx context.Context) error {
	if _, err := p.sm.Fire(ctx, eventStart, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrNotIdle, err)
	}

	var errs []error
	for _, pool := range p.Pools() {
		if err := pool.Start(ctx); err != nil {
			p.logger.Errorf("start %s: %v", pool.Spec().Name(), err)
			errs = append(errs, err)
		}
	}
	p.logger.Infof("pipeline started: %d channel(s), %d worker type(s)", len(p.Channels()), len(p.Pools()))
	return errors.Join(errs...)
}

// Pause closes the pause gate for every worker
func (p *Pipeline) Pause() error {
	p.logger.Info("pausing workers")
	return p.controller.Pause()
}

// Resume opens the pause gate
func (p *Pipeline) Resume() error {
	p.logger.Info("resuming workers")
	return p.controller.Resume()
}

// RunWorker runs instance index of worker type name on the calling
// goroutine. A child process started by worker.ProcessLauncher rebuilds
// the topology and then calls this.
func (p *Pipeline) RunWorker(ctx context.Context, name string, index int) error {
	for _, pool := range p.Pools() {
		if pool.Spec().Name() == name {
			return pool.RunInstance(ctx, index)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
}

// Close releases the backend
func (p *Pipeline) Close() error {
	return p.backend.Close()
}
