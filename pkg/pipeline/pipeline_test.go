package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/cluster"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/fsm"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func nopLoggers(string) (core.Logger, error) {
	return core.NewNopLogger(), nil
}

func newTestPipeline(t *testing.T, backend concurrency.Backend, opts ...func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{
		Name:        "test",
		Backend:     backend,
		Logger:      core.NewNopLogger(),
		PoolOptions: []worker.Option{worker.WithLoggerFactory(nopLoggers)},
	}
	for _, o := range opts {
		o(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// sourceEntry emits increasing integers as fast as its output accepts them.
var sourceEntry = worker.NewEntry("source", func(ctx context.Context, _ struct{}, env *worker.Env) error {
	n := 0
	return env.Loop(ctx, func(ctx context.Context) error {
		n++
		return env.Emit(ctx, 0, n)
	})
})

// relayEntry forwards items from its input to its output.
var relayEntry = worker.NewEntry("relay", func(ctx context.Context, _ struct{}, env *worker.Env) error {
	return env.Loop(ctx, func(ctx context.Context) error {
		item, ok, err := env.Poll(0)
		if err != nil || !ok {
			if !ok {
				env.Sleep(ctx, time.Millisecond)
			}
			return err
		}
		return env.Emit(ctx, 0, item)
	})
})

// buildChain wires A -> B -> C, each stage writing into its own channel.
func buildChain(t *testing.T, p *Pipeline, capacity int, codec core.Codec) (a, b, c concurrency.Channel) {
	t.Helper()
	var err error
	a, err = p.NewChannel("A", capacity, codec)
	require.NoError(t, err)
	b, err = p.NewChannel("B", capacity, codec)
	require.NoError(t, err)
	c, err = p.NewChannel("C", capacity, codec)
	require.NoError(t, err)

	_, err = p.AddWorker(worker.SpecConfig{Name: "stage_a", Count: 1, Entry: sourceEntry, Outputs: []concurrency.Channel{a}})
	require.NoError(t, err)
	_, err = p.AddWorker(worker.SpecConfig{Name: "stage_b", Count: 1, Entry: relayEntry, Inputs: []concurrency.Channel{a}, Outputs: []concurrency.Channel{b}})
	require.NoError(t, err)
	_, err = p.AddWorker(worker.SpecConfig{Name: "stage_c", Count: 1, Entry: relayEntry, Inputs: []concurrency.Channel{b}, Outputs: []concurrency.Channel{c}})
	require.NoError(t, err)
	return a, b, c
}

func shutdownWithin(t *testing.T, p *Pipeline, d time.Duration) ShutdownReport {
	t.Helper()
	type result struct {
		report ShutdownReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := p.Shutdown(context.Background())
		done <- result{r, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		return r.report
	case <-time.After(d):
		t.Fatalf("shutdown did not complete within %s", d)
		return ShutdownReport{}
	}
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestShutdown_ThreeStageBlockedChain(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	a, b, c := buildChain(t, p, 1, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateRunning, p.State())

	// Every stage ends up parked in Put on a full downstream channel.
	require.Eventually(t, func() bool {
		return a.Len() == 1 && b.Len() == 1 && c.Len() == 1
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	report := shutdownWithin(t, p, 5*time.Second)
	assert.Equal(t, StateJoined, p.State())
	assert.True(t, p.Controller().IsExitRequested())

	order := make([]string, 0, len(report.Drained))
	for _, d := range report.Drained {
		order = append(order, d.Channel)
	}
	assert.Equal(t, []string{"C", "B", "A"}, order)
	assert.Equal(t, 3, report.Joined)
	for _, pool := range p.Pools() {
		assert.Equal(t, 0, pool.Alive())
	}

	// Capacity held throughout
	for _, ch := range []concurrency.Channel{a, b, c} {
		assert.LessOrEqual(t, ch.Len(), 1)
	}

	// A second shutdown is a no-op returning the same report
	again, err := p.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Drained, again.Drained)
}

func TestShutdown_BeforeStart(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	buildChain(t, p, 1, nil)

	report := shutdownWithin(t, p, 2*time.Second)
	assert.Len(t, report.Drained, 3)
	assert.Equal(t, StateJoined, p.State())

	assert.Error(t, p.Start(context.Background()))
}

func TestShutdown_ReportsCrashedWorker(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	_, err := p.AddWorker(worker.SpecConfig{
		Name:  "crasher",
		Count: 2,
		Entry: worker.NewEntry("crasher", func(ctx context.Context, _ struct{}, env *worker.Env) error {
			panic("lost link")
		}),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	report, err := p.Shutdown(context.Background())
	assert.True(t, errors.Is(err, worker.ErrInstanceCrashed), "Shutdown() error = %v", err)
	assert.NotEmpty(t, report.Errors)
	assert.Equal(t, StateJoined, p.State())
}

// flakyBackend hands out controllers whose exit flag cannot be published
// while fail is set, like a KV bucket whose connection dropped.
type flakyBackend struct {
	*concurrency.LocalBackend
	ctrl *flakyController
}

type flakyController struct {
	concurrency.Controller
	fail atomic.Bool
}

func (c *flakyController) RequestExit() error {
	if c.fail.Load() {
		return errors.New("kv put: connection closed")
	}
	return c.Controller.RequestExit()
}

func (b *flakyBackend) NewController() (concurrency.Controller, error) {
	inner, err := b.LocalBackend.NewController()
	if err != nil {
		return nil, err
	}
	b.ctrl = &flakyController{Controller: inner}
	b.ctrl.fail.Store(true)
	return b.ctrl, nil
}

func TestShutdown_ExitRequestFails(t *testing.T) {
	backend := &flakyBackend{LocalBackend: concurrency.NewLocalBackend()}
	p := newTestPipeline(t, backend)
	_, err := p.AddWorker(worker.SpecConfig{
		Name:  "idle",
		Count: 1,
		Entry: worker.NewEntry("idle", func(ctx context.Context, _ struct{}, env *worker.Env) error {
			return env.Loop(ctx, func(ctx context.Context) error {
				env.Sleep(ctx, time.Millisecond)
				return nil
			})
		}),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := p.Shutdown(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection closed")
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown kept joining workers that were never told to exit")
	}
	assert.Equal(t, StateExitRequested, p.State())
	assert.False(t, p.Controller().IsExitRequested())
	assert.Equal(t, 1, p.Pools()[0].Alive())

	// connection back: the next Shutdown retries the request
	backend.ctrl.fail.Store(false)
	report := shutdownWithin(t, p, 2*time.Second)
	assert.Equal(t, 1, report.Joined)
	assert.Empty(t, report.Errors)
	assert.Equal(t, StateJoined, p.State())
	assert.True(t, p.Controller().IsExitRequested())
}

func TestShutdown_JoinedOnlyAfterJoin(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	release := make(chan struct{})
	_, err := p.AddWorker(worker.SpecConfig{
		Name:  "stubborn",
		Count: 1,
		Entry: worker.NewEntry("stubborn", func(ctx context.Context, _ struct{}, env *worker.Env) error {
			<-release
			return nil
		}),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Shutdown(context.Background())
	}()

	require.Eventually(t, func() bool {
		return p.Controller().IsExitRequested()
	}, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDraining, p.State(), "state must not read JOINED while join is waiting")

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete after the worker returned")
	}
	assert.Equal(t, StateJoined, p.State())
}

func TestPauseResume(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())

	var iterations int64
	_, err := p.AddWorker(worker.SpecConfig{
		Name:  "counter",
		Count: 2,
		Entry: worker.NewEntry("counter", func(ctx context.Context, _ struct{}, env *worker.Env) error {
			return env.Loop(ctx, func(ctx context.Context) error {
				atomic.AddInt64(&iterations, 1)
				env.Sleep(ctx, time.Millisecond)
				return nil
			})
		}),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	for cycle := 0; cycle < 2; cycle++ {
		require.Eventually(t, func() bool { return atomic.LoadInt64(&iterations) > 0 }, 2*time.Second, time.Millisecond)

		require.NoError(t, p.Pause())
		assert.True(t, p.Status().Paused)
		time.Sleep(50 * time.Millisecond) // let in-flight iterations finish
		frozen := atomic.LoadInt64(&iterations)
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, frozen, atomic.LoadInt64(&iterations), "no iterations while paused (cycle %d)", cycle)

		require.NoError(t, p.Resume())
		require.Eventually(t, func() bool { return atomic.LoadInt64(&iterations) > frozen }, 2*time.Second, time.Millisecond)
		atomic.StoreInt64(&iterations, 0)
	}

	shutdownWithin(t, p, 5*time.Second)
}

func TestShutdown_WhilePaused(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	buildChain(t, p, 1, nil)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Pause())

	shutdownWithin(t, p, 5*time.Second)
}

func TestAddWorker_SkipsInvalid(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	ch, err := p.NewChannel("out", 1, nil)
	require.NoError(t, err)

	_, err = p.AddWorker(worker.SpecConfig{Name: "broken", Count: 0, Entry: sourceEntry, Outputs: []concurrency.Channel{ch}})
	assert.Error(t, err)
	_, err = p.AddWorker(worker.SpecConfig{Name: "source", Count: 1, Entry: sourceEntry, Outputs: []concurrency.Channel{ch}})
	require.NoError(t, err)
	_, err = p.AddWorker(worker.SpecConfig{Name: "source", Count: 1, Entry: sourceEntry, Outputs: []concurrency.Channel{ch}})
	assert.Error(t, err, "duplicate worker names are rejected")

	assert.Contains(t, p.Skipped(), "broken")
	assert.Len(t, p.Pools(), 1)

	_, err = p.NewChannel("out", 1, nil)
	assert.Error(t, err, "duplicate channel names are rejected")

	require.NoError(t, p.Start(context.Background()))
	_, err = p.NewChannel("late", 1, nil)
	assert.ErrorIs(t, err, ErrNotIdle)
	_, err = p.AddWorker(worker.SpecConfig{Name: "late", Count: 1, Entry: sourceEntry})
	assert.ErrorIs(t, err, ErrNotIdle)

	shutdownWithin(t, p, 5*time.Second)
}

func TestRunWorker(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	ch, err := p.NewChannel("out", 1, nil)
	require.NoError(t, err)
	_, err = p.AddWorker(worker.SpecConfig{Name: "source", Count: 1, Entry: sourceEntry, Outputs: []concurrency.Channel{ch}})
	require.NoError(t, err)

	assert.ErrorIs(t, p.RunWorker(context.Background(), "missing", 0), ErrUnknownWorker)

	done := make(chan error, 1)
	go func() { done <- p.RunWorker(context.Background(), "source", 0) }()
	require.Eventually(t, func() bool { return ch.Len() == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, p.Controller().RequestExit())
	_, err = ch.Drain(context.Background())
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunWorker did not return")
	}
}

func TestConsume(t *testing.T) {
	p := newTestPipeline(t, concurrency.NewLocalBackend())
	hb, err := p.NewChannel("heartbeat", 10, nil)
	require.NoError(t, err)
	cmd, err := p.NewChannel("command", 10, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, hb.Put(ctx, "Connected"))
	require.NoError(t, cmd.Put(ctx, "CHANGE_ALTITUDE: 0"))
	require.NoError(t, hb.Put(ctx, "Disconnected"))

	var seen []string
	reason, err := p.Consume(ctx, ConsumeOptions{
		Channels: []concurrency.Channel{cmd, hb},
		Handler: func(channel string, item any) (bool, error) {
			seen = append(seen, channel+":"+item.(string))
			return item == "Disconnected", nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StopHandler, reason)
	assert.Equal(t, []string{"command:CHANGE_ALTITUDE: 0", "heartbeat:Connected", "heartbeat:Disconnected"}, seen)

	reason, err = p.Consume(ctx, ConsumeOptions{
		Channels: []concurrency.Channel{cmd},
		Handler:  func(string, any) (bool, error) { return false, errors.New("ignored") },
		Duration: 30 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, StopDeadline, reason)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	reason, err = p.Consume(cctx, ConsumeOptions{
		Channels: []concurrency.Channel{cmd},
		Handler:  func(string, any) (bool, error) { return false, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, StopContext, reason)

	_, err = p.Consume(ctx, ConsumeOptions{})
	assert.Error(t, err)
}

func TestStatusAndTransitions(t *testing.T) {
	var transitions []string
	p := newTestPipeline(t, concurrency.NewLocalBackend(), func(c *Config) {
		c.OnTransition = func(from, to fsm.State) {
			transitions = append(transitions, string(from)+">"+string(to))
		}
	})
	buildChain(t, p, 2, nil)

	st := p.Status()
	assert.Equal(t, "test", st.Name)
	assert.NotEmpty(t, st.RunID)
	assert.Equal(t, "IDLE", st.State)
	require.Len(t, st.Channels, 3)
	assert.Equal(t, ChannelStatus{Name: "A", Len: 0, Cap: 2}, st.Channels[0])
	require.Len(t, st.Workers, 3)
	assert.Equal(t, "stage_a", st.Workers[0].Name)

	require.NoError(t, p.Start(context.Background()))
	shutdownWithin(t, p, 5*time.Second)

	assert.Equal(t, []string{
		"IDLE>RUNNING",
		"RUNNING>EXIT_REQUESTED",
		"EXIT_REQUESTED>DRAINING",
		"DRAINING>JOINED",
	}, transitions)
	assert.True(t, p.Status().ExitRequested)
}

func TestShutdown_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	p := newTestPipeline(t, concurrency.NewLocalBackend(), func(c *Config) {
		c.Tracer = tp.Tracer("test")
	})
	buildChain(t, p, 1, nil)
	require.NoError(t, p.Start(context.Background()))
	shutdownWithin(t, p, 5*time.Second)

	counts := map[string]int{}
	for _, s := range sr.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 1, counts["pipeline.shutdown"])
	assert.Equal(t, 1, counts["pipeline.request_exit"])
	assert.Equal(t, 3, counts["pipeline.drain"])
	assert.Equal(t, 1, counts["pipeline.join"])
}

func TestShutdown_ClusterBackend(t *testing.T) {
	coord, err := cluster.StartCoordinator(cluster.CoordinatorConfig{StoreDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(coord.Shutdown)

	backend, err := cluster.Connect(cluster.Config{
		URL:       coord.ClientURL(),
		RunID:     "chain-test",
		Owner:     true,
		FetchWait: 100 * time.Millisecond,
		Logger:    core.NewNopLogger(),
	})
	require.NoError(t, err)

	p := newTestPipeline(t, backend)
	a, b, c := buildChain(t, p, 1, core.JSONCodec[int]{})
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return a.Len() == 1 && b.Len() == 1 && c.Len() == 1
	}, 10*time.Second, 20*time.Millisecond)

	report := shutdownWithin(t, p, 15*time.Second)
	require.Len(t, report.Drained, 3)
	assert.Equal(t, "C", report.Drained[0].Channel)
	assert.Equal(t, "A", report.Drained[2].Channel)
}
