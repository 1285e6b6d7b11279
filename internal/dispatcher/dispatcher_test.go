package dispatcher

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

func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = t.Name()
	}
	d := New(cfg, nil)
	t.Cleanup(d.Close)
	return d
}

func TestSubmitReturnsWorkResult(t *testing.T) {
	d := newTestDispatcher(t, Config{})

	err := d.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)

	boom := errors.New("boom")
	err = d.Submit(context.Background(), func(ctx context.Context) error { return boom })
	assert.Same(t, boom, err, "work error must propagate unchanged")
}

func TestDoReturnsValue(t *testing.T) {
	d := newTestDispatcher(t, Config{})

	got, err := Do(context.Background(), d, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, err = Do(context.Background(), d, func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrencyCeiling(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 3, MaxPerWindow: 100})

	var running, peak int32
	work := func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	start := time.Now()
	results := make([]<-chan error, 10)
	for i := range results {
		results[i] = d.Enqueue(context.Background(), work)
	}
	for _, ch := range results {
		require.NoError(t, <-ch)
	}
	elapsed := time.Since(start)

	// ceil(10/3) batches of 200ms
	assert.GreaterOrEqual(t, elapsed, 800*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestStartsFollowSubmissionOrder(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 1})

	var mu sync.Mutex
	var order []int
	results := make([]<-chan error, 20)
	for i := range results {
		i := i
		results[i] = d.Enqueue(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	for _, ch := range results {
		require.NoError(t, <-ch)
	}

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestRateWindowDelaysExtraStarts(t *testing.T) {
	const limit = 5
	window := 300 * time.Millisecond
	d := newTestDispatcher(t, Config{MaxConcurrent: 10, MaxPerWindow: limit, Window: window})

	var mu sync.Mutex
	var starts []time.Time
	results := make([]<-chan error, limit+5)
	for i := range results {
		results[i] = d.Enqueue(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return nil
		})
	}
	for _, ch := range results {
		require.NoError(t, <-ch)
	}

	require.Len(t, starts, limit+5)
	// The (limit+1)-th start must wait for the first start to leave the window.
	gap := starts[limit].Sub(starts[0])
	assert.GreaterOrEqual(t, gap, window-10*time.Millisecond)
	for i := 1; i < limit; i++ {
		assert.Less(t, starts[i].Sub(starts[0]), window/2, "first %d starts should not be delayed", limit)
	}
}

func TestSpacerSeparatesStarts(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 5})
	spacer := NewSpacer(100 * time.Millisecond)

	var mu sync.Mutex
	var starts []time.Time
	record := func(ctx context.Context) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil
	}

	a := d.Enqueue(context.Background(), record, WithSpacer(spacer))
	b := d.Enqueue(context.Background(), record, WithSpacer(spacer))
	require.NoError(t, <-a)
	require.NoError(t, <-b)

	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 90*time.Millisecond)
}

func TestPanickingWorkBecomesError(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 1})

	err := d.Submit(context.Background(), func(ctx context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// The slot must have been released.
	err = d.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestMaxQueueRejectsOverflow(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 1, MaxQueue: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	first := d.Enqueue(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	second := d.Enqueue(context.Background(), func(ctx context.Context) error { return nil })
	third := d.Enqueue(context.Background(), func(ctx context.Context) error { return nil })

	assert.ErrorIs(t, <-third, ErrQueueFull)

	close(release)
	assert.NoError(t, <-first)
	assert.NoError(t, <-second)
}

func TestCancelledWhileQueuedNeverRuns(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := d.Enqueue(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued := d.Enqueue(ctx, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	cancel()

	assert.ErrorIs(t, <-queued, context.Canceled)
	close(release)
	assert.NoError(t, <-blocker)
	assert.False(t, ran.Load())
}

func TestClosedDispatcherRejectsWork(t *testing.T) {
	d := New(Config{Name: "closed"}, nil)
	d.Close()

	err := d.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseReleasesItemWaitingForSlot(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 1, MaxPerWindow: 100})

	release := make(chan struct{})
	defer close(release)
	running := d.Enqueue(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	require.Eventually(t, func() bool { return d.Stats().InFlight == 1 }, time.Second, 5*time.Millisecond)

	waiting := d.Enqueue(context.Background(), func(ctx context.Context) error { return nil })
	time.Sleep(20 * time.Millisecond)
	d.Close()

	select {
	case err := <-waiting:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("item waiting for a slot was not released by Close")
	}

	select {
	case err := <-running:
		t.Fatalf("running item finished early: %v", err)
	default:
	}
}

func TestStatsReflectsWindow(t *testing.T) {
	d := newTestDispatcher(t, Config{MaxConcurrent: 2, MaxPerWindow: 10, Window: time.Minute})

	for i := 0; i < 4; i++ {
		require.NoError(t, d.Submit(context.Background(), func(ctx context.Context) error { return nil }))
	}

	stats := d.Stats()
	assert.Equal(t, 4, stats.TotalStarted)
	assert.Equal(t, 4, stats.StartsInWindow)
	assert.Equal(t, 0, stats.Queued)
}
