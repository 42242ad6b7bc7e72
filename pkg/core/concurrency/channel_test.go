package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T, capacity int) Channel {
	t.Helper()
	ch, err := NewChannel("test", capacity)
	require.NoError(t, err)
	return ch
}

func TestNewChannel(t *testing.T) {
	ch := newTestChannel(t, 10)
	assert.Equal(t, "test", ch.Name())
	assert.Equal(t, 10, ch.Cap())
	assert.Equal(t, 0, ch.Len())

	_, err := NewChannel("", 1)
	assert.Error(t, err)
}

func TestChannel_TryPutFull(t *testing.T) {
	ch := newTestChannel(t, 2)

	require.NoError(t, ch.TryPut("message1"))
	require.NoError(t, ch.TryPut("message2"))

	err := ch.TryPut("message3")
	if !errors.Is(err, ErrChannelFull) {
		t.Errorf("TryPut() to full channel error = %v, want ErrChannelFull", err)
	}
	assert.Equal(t, 2, ch.Len())
}

func TestChannel_NilItem(t *testing.T) {
	ch := newTestChannel(t, 2)

	assert.ErrorIs(t, ch.Put(context.Background(), nil), ErrNilItem)
	assert.ErrorIs(t, ch.TryPut(nil), ErrNilItem)
}

func TestChannel_TryGet(t *testing.T) {
	ch := newTestChannel(t, 10)

	msg, ok, err := ch.TryGet()
	require.NoError(t, err)
	assert.False(t, ok, "TryGet() on empty channel should return ok=false")
	assert.Nil(t, msg)

	// A zero-valued payload is still an item
	require.NoError(t, ch.Put(context.Background(), 0))
	msg, ok, err = ch.TryGet()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, msg)
}

func TestChannel_GetBlocksUntilPut(t *testing.T) {
	ch := newTestChannel(t, 1)
	got := make(chan any, 1)

	go func() {
		item, err := ch.Get(context.Background())
		if err == nil {
			got <- item
		}
	}()

	select {
	case <-got:
		t.Fatal("Get() returned before any Put()")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, ch.Put(context.Background(), "hello"))
	select {
	case item := <-got:
		assert.Equal(t, "hello", item)
	case <-time.After(2 * time.Second):
		t.Fatal("Get() did not return after Put()")
	}
}

func TestChannel_GetContextCancelled(t *testing.T) {
	ch := newTestChannel(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ch.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_PutBlocksWhileFull(t *testing.T) {
	for _, release := range []string{"get", "drain"} {
		t.Run(release, func(t *testing.T) {
			ch := newTestChannel(t, 1)
			require.NoError(t, ch.Put(context.Background(), "first"))

			done := make(chan error, 1)
			go func() {
				done <- ch.Put(context.Background(), "second")
			}()

			select {
			case <-done:
				t.Fatal("Put() on a full channel returned")
			case <-time.After(50 * time.Millisecond):
			}
			assert.Equal(t, 1, ch.Len())

			if release == "get" {
				_, err := ch.Get(context.Background())
				require.NoError(t, err)
			} else {
				_, err := ch.Drain(context.Background())
				require.NoError(t, err)
			}

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Put() still blocked after space was freed")
			}
			assert.Equal(t, 1, ch.Len())
		})
	}
}

func TestChannel_CapacityNeverExceeded(t *testing.T) {
	const (
		capacity  = 3
		producers = 4
		perProd   = 200
	)
	ch := newTestChannel(t, capacity)
	ctx := context.Background()

	var maxSeen int32
	stop := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	go func() {
		defer watcher.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := int32(ch.Len()); n > atomic.LoadInt32(&maxSeen) {
				atomic.StoreInt32(&maxSeen, n)
			}
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				if err := ch.Put(ctx, p*perProd+i); err != nil {
					t.Errorf("Put() error = %v", err)
					return
				}
			}
		}(p)
	}

	received := 0
	for received < producers*perProd {
		_, err := ch.Get(ctx)
		require.NoError(t, err)
		received++
	}
	wg.Wait()
	close(stop)
	watcher.Wait()

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), capacity)
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_FIFOPerProducer(t *testing.T) {
	ch := newTestChannel(t, 0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, ch.Put(ctx, i))
	}
	for i := 0; i < 100; i++ {
		item, err := ch.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, item)
	}
}

func TestChannel_Drain(t *testing.T) {
	ch := newTestChannel(t, 5)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, ch.Put(ctx, i))
	}

	items, err := ch.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3, 4, 5}, items)
	assert.Equal(t, 0, ch.Len())

	_, ok, err := ch.TryGet()
	require.NoError(t, err)
	assert.False(t, ok, "TryGet() after Drain() should report empty")

	// Draining an empty channel does not block
	items, err = ch.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestChannel_Unbounded(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		ch := newTestChannel(t, capacity)
		assert.Equal(t, 0, ch.Cap())

		for i := 0; i < 1000; i++ {
			require.NoError(t, ch.TryPut(i))
		}
		assert.Equal(t, 1000, ch.Len())
	}
}

func TestLocalBackend(t *testing.T) {
	b := NewLocalBackend()
	defer b.Close()

	ch, err := b.NewChannel("telemetry", 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, ch.Cap())

	ctrl, err := b.NewController()
	require.NoError(t, err)
	assert.False(t, ctrl.IsExitRequested())
}
