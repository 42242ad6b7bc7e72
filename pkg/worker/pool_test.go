package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core/concurrency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopLoggers(string) (core.Logger, error) {
	return core.NewNopLogger(), nil
}

type recordingObserver struct {
	mu      sync.Mutex
	started []int
	stopped map[int]error
}

func (o *recordingObserver) InstanceStarted(_ string, index int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, index)
}

func (o *recordingObserver) InstanceStopped(_ string, index int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped == nil {
		o.stopped = make(map[int]error)
	}
	o.stopped[index] = err
}

func (o *recordingObserver) stoppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.stopped)
}

func TestNewPool_NilSpec(t *testing.T) {
	p, err := NewPool(nil, nil)
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestPool_StartJoin(t *testing.T) {
	cfg := validConfig(t)
	cfg.Count = 3
	ctrl := cfg.Controller.(*concurrency.LocalController)
	in, out := cfg.Inputs[0], cfg.Outputs[0]

	spec, err := NewSpec(cfg)
	require.NoError(t, err)

	obs := &recordingObserver{}
	var names sync.Map
	pool, err := NewPool(spec, core.NewNopLogger(),
		WithObserver(obs),
		WithLoggerFactory(func(name string) (core.Logger, error) {
			names.Store(name, true)
			return core.NewNopLogger(), nil
		}),
	)
	require.NoError(t, err)

	// Join before Start returns at once
	require.NoError(t, pool.Join())

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolStarted)
	assert.Len(t, pool.Handles(), 3)

	require.NoError(t, in.Put(ctx, "a"))
	item, err := out.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, ">a", item)

	require.NoError(t, ctrl.RequestExit())
	require.NoError(t, pool.Join())
	assert.Empty(t, pool.Handles())
	assert.Equal(t, 0, pool.Alive())

	for i := 0; i < 3; i++ {
		_, ok := names.Load(fmt.Sprintf("relay_%d_%d", i, os.Getpid()))
		assert.True(t, ok, "instance %d should get its own logger", i)
	}
	assert.ElementsMatch(t, []int{0, 1, 2}, obs.started)
	assert.Eventually(t, func() bool { return obs.stoppedCount() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestPool_CrashReportedByJoin(t *testing.T) {
	ctrl := concurrency.NewController()
	spec, err := NewSpec(SpecConfig{
		Name:  "crasher",
		Count: 1,
		Entry: NewEntry("crasher", func(ctx context.Context, _ struct{}, env *Env) error {
			panic("device unplugged")
		}),
		Controller: ctrl,
	})
	require.NoError(t, err)

	pool, err := NewPool(spec, core.NewNopLogger(), WithLoggerFactory(nopLoggers))
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))

	err = pool.Join()
	assert.True(t, errors.Is(err, ErrInstanceCrashed), "Join() error = %v", err)
}

func TestPool_IterationErrorsAreNotFatal(t *testing.T) {
	ctrl := concurrency.NewController()
	var mu sync.Mutex
	calls := 0

	spec, err := NewSpec(SpecConfig{
		Name:  "flaky",
		Count: 1,
		Entry: NewEntry("flaky", func(ctx context.Context, _ struct{}, env *Env) error {
			return env.Loop(ctx, func(ctx context.Context) error {
				mu.Lock()
				calls++
				n := calls
				mu.Unlock()
				if n == 3 {
					_ = ctrl.RequestExit()
				}
				if n%2 == 0 {
					panic("bad item")
				}
				return errors.New("transient")
			})
		}),
		Controller: ctrl,
	})
	require.NoError(t, err)

	pool, err := NewPool(spec, nil, WithLoggerFactory(nopLoggers))
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Join())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestPool_RunInstanceIndex(t *testing.T) {
	spec, err := NewSpec(validConfig(t))
	require.NoError(t, err)
	pool, err := NewPool(spec, nil, WithLoggerFactory(nopLoggers))
	require.NoError(t, err)

	assert.Error(t, pool.RunInstance(context.Background(), 2))
	assert.Error(t, pool.RunInstance(context.Background(), -1))
}

func TestPool_LaunchFailure(t *testing.T) {
	spec, err := NewSpec(validConfig(t))
	require.NoError(t, err)
	pool, err := NewPool(spec, nil, WithLauncher(ProcessLauncher{}))
	require.NoError(t, err)

	assert.Error(t, pool.Start(context.Background()))
	assert.NoError(t, pool.Join())
}

// TestHelperProcess is not a real test; ProcessLauncher tests re-execute the
// test binary into it.
func TestHelperProcess(t *testing.T) {
	switch os.Getenv("WORKER_HELPER") {
	case "":
		return
	case "ok":
		os.Exit(0)
	default:
		os.Exit(3)
	}
}

func helperLauncher(mode string) ProcessLauncher {
	return ProcessLauncher{
		Path: os.Args[0],
		Args: func(spec string, index int) []string {
			return []string{"-test.run=^TestHelperProcess$", "--", spec, fmt.Sprint(index)}
		},
		Env: []string{"WORKER_HELPER=" + mode},
	}
}

func TestProcessLauncher(t *testing.T) {
	for _, mode := range []string{"ok", "crash"} {
		t.Run(mode, func(t *testing.T) {
			cfg := validConfig(t)
			spec, err := NewSpec(cfg)
			require.NoError(t, err)

			pool, err := NewPool(spec, core.NewNopLogger(), WithLauncher(helperLauncher(mode)))
			require.NoError(t, err)
			require.NoError(t, pool.Start(context.Background()))

			handles := pool.Handles()
			require.Len(t, handles, 2)
			assert.NotEqual(t, handles[0].ID(), handles[1].ID())

			err = pool.Join()
			if mode == "ok" {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInstanceCrashed), "Join() error = %v", err)
			}
		})
	}
}
