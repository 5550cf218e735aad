package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedWork(t *testing.T) {
	p := NewPool(4)
	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			n.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(20), n.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolTrySubmitFullPool(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-release }))

	assert.False(t, p.TrySubmit(context.Background(), func(context.Context) {}))
	close(release)
}

func TestPoolDrainWaitsForInFlight(t *testing.T) {
	p := NewPool(2)
	var done atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Drain(ctx))
	assert.True(t, done.Load())

	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrPoolClosed)
}

func TestPoolDrainDeadline(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Drain(ctx), context.DeadlineExceeded)
	close(release)
}

func TestPoolAbsorbsPanics(t *testing.T) {
	p := NewPool(1)
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Drain(ctx))
}

func newQueueTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestQueueEnqueueAndProcess(t *testing.T) {
	_, rdb := newQueueTestRedis(t)
	q := NewQueue(rdb, NewPool(2))

	var got map[string]any
	q.Register("log_translation", func(_ context.Context, args map[string]any) error {
		got = args
		return nil
	})

	ok := q.Enqueue(context.Background(), "log_translation", map[string]any{"user_id": "usr_1"})
	assert.True(t, ok)
	assert.Equal(t, int64(1), q.Length(context.Background()))

	processed, err := q.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, "usr_1", got["user_id"])
	assert.Equal(t, int64(0), q.Length(context.Background()))
}

func TestQueueEmptyProcessIsNoop(t *testing.T) {
	_, rdb := newQueueTestRedis(t)
	q := NewQueue(rdb, NewPool(1))

	processed, err := q.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestQueueUnknownJobSurfaces(t *testing.T) {
	_, rdb := newQueueTestRedis(t)
	q := NewQueue(rdb, NewPool(1))

	q.Enqueue(context.Background(), "mystery", nil)
	processed, err := q.ProcessOne(context.Background())
	assert.True(t, processed)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestQueueFallsBackInlineWhenRedisDown(t *testing.T) {
	mr, rdb := newQueueTestRedis(t)
	pool := NewPool(2)
	q := NewQueue(rdb, pool)

	ran := make(chan struct{})
	q.Register("log_translation", func(context.Context, map[string]any) error {
		close(ran)
		return nil
	})

	mr.Close()
	ok := q.Enqueue(context.Background(), "log_translation", map[string]any{"x": "y"})
	assert.False(t, ok)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("inline fallback never ran")
	}
}

func TestQueueWorkerDrainsBacklog(t *testing.T) {
	_, rdb := newQueueTestRedis(t)
	q := NewQueue(rdb, NewPool(1))

	var n atomic.Int32
	q.Register("tick", func(context.Context, map[string]any) error {
		n.Add(1)
		return nil
	})
	for i := 0; i < 5; i++ {
		q.Enqueue(context.Background(), "tick", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.RunWorker(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for n.Load() < 5 {
		select {
		case <-deadline:
			t.Fatal("worker did not drain backlog")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
