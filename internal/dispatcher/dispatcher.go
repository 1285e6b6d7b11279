// Package dispatcher runs asynchronous work items under a concurrency ceiling
// and a sliding-window start-rate ceiling.
//
// Items start strictly in submission order. A single scheduler goroutine pops
// the queue head, waits for a concurrency slot, then for room in the rate
// window, then for any call-site spacing, and only then starts the item. The
// queue is unbounded unless Config.MaxQueue is set.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxConcurrent is the number of items allowed in flight at once
	DefaultMaxConcurrent = 3
	// DefaultMaxPerWindow is the number of item starts allowed per window
	DefaultMaxPerWindow = 30
	// DefaultWindow is the length of the rolling rate window
	DefaultWindow = time.Minute
)

var (
	// ErrQueueFull is returned when MaxQueue is set and the queue is at capacity
	ErrQueueFull = errors.New("dispatcher queue is full")
	// ErrClosed is returned for work submitted to, or still queued in, a closed dispatcher
	ErrClosed = errors.New("dispatcher is closed")
)

// Config holds dispatcher limits
type Config struct {
	MaxConcurrent int           // in-flight ceiling (default 3)
	MaxPerWindow  int           // starts per window (default 30)
	Window        time.Duration // rolling window length (default 60s)
	MaxQueue      int           // queued (not yet started) items; 0 = unbounded
	Name          string        // identifier for logging
}

func (c *Config) defaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = DefaultMaxPerWindow
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Name == "" {
		c.Name = "default"
	}
}

// Work is a unit of asynchronous work. The context is the submitter's.
type Work func(ctx context.Context) error

// Option customises a single submission
type Option func(*job)

// WithSpacer layers a minimum inter-start spacing on top of the dispatcher's
// own limits. Items sharing a Spacer start at least its interval apart.
func WithSpacer(s *Spacer) Option {
	return func(j *job) { j.spacer = s }
}

type job struct {
	ctx    context.Context
	work   Work
	spacer *Spacer
	result chan error
}

// Stats is a point-in-time snapshot of dispatcher state
type Stats struct {
	Queued         int `json:"queued"`
	InFlight       int `json:"in_flight"`
	StartsInWindow int `json:"starts_in_window"`
	TotalStarted   int `json:"total_started"`
}

// Dispatcher executes submitted work under concurrency and rate ceilings.
// The zero value is not usable; construct with New.
type Dispatcher struct {
	cfg Config
	log logger.Logger
	sem *semaphore.Weighted
	now func() time.Time

	mu           sync.Mutex
	queue        []*job
	pending      int // submitted but not yet started or abandoned
	inFlight     int
	starts       []time.Time
	totalStarted int
	closed       bool

	wake chan struct{}

	// closing is cancelled by Close and releases every scheduler wait
	closing  context.Context
	closeAll context.CancelFunc
}

// New creates a Dispatcher and starts its scheduler goroutine
func New(cfg Config, log logger.Logger) *Dispatcher {
	cfg.defaults()
	if log == nil {
		log = logger.Default()
	}

	d := &Dispatcher{
		cfg:  cfg,
		log:  log.With(logger.String("dispatcher", cfg.Name)),
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
	d.closing, d.closeAll = context.WithCancel(context.Background())

	go d.run()

	d.log.Debug("dispatcher initialized",
		logger.Int("max_concurrent", cfg.MaxConcurrent),
		logger.Int("max_per_window", cfg.MaxPerWindow),
		logger.Duration("window", cfg.Window),
		logger.Int("max_queue", cfg.MaxQueue),
	)

	return d
}

// Enqueue adds work to the queue and returns a channel that receives exactly
// the error the work returned (or a scheduling error if it never started).
func (d *Dispatcher) Enqueue(ctx context.Context, work Work, opts ...Option) <-chan error {
	j := &job{ctx: ctx, work: work, result: make(chan error, 1)}
	for _, opt := range opts {
		opt(j)
	}

	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		j.result <- ErrClosed
		return j.result
	case d.cfg.MaxQueue > 0 && d.pending >= d.cfg.MaxQueue:
		d.mu.Unlock()
		j.result <- ErrQueueFull
		return j.result
	}
	d.queue = append(d.queue, j)
	d.pending++
	d.mu.Unlock()

	d.signal()
	return j.result
}

// Submit enqueues work and blocks until it has run
func (d *Dispatcher) Submit(ctx context.Context, work Work, opts ...Option) error {
	return <-d.Enqueue(ctx, work, opts...)
}

// Do runs a value-returning work item through d
func Do[T any](ctx context.Context, d *Dispatcher, work func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := d.Submit(ctx, func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}

// Stats returns a snapshot of the queue and window
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pruneLocked(d.now())
	return Stats{
		Queued:         d.pending,
		InFlight:       d.inFlight,
		StartsInWindow: len(d.starts),
		TotalStarted:   d.totalStarted,
	}
}

// Close stops accepting work. Items that have not started receive ErrClosed;
// running items are left to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.closeAll()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run is the scheduler loop; it is the only goroutine that starts work
func (d *Dispatcher) run() {
	for {
		j := d.next()
		if j == nil {
			d.drain()
			return
		}
		d.schedule(j)
	}
}

// next blocks until the queue has a head item or the dispatcher is closed
func (d *Dispatcher) next() *job {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil
		}
		if len(d.queue) > 0 {
			j := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return j
		}
		d.mu.Unlock()

		select {
		case <-d.wake:
		case <-d.closing.Done():
		}
	}
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	queued := d.queue
	d.queue = nil
	d.pending -= len(queued)
	d.mu.Unlock()

	for _, j := range queued {
		j.result <- ErrClosed
	}
}

// schedule waits for every gate in order, then starts j. Every gate is
// released by Close as well as by the item's own context.
func (d *Dispatcher) schedule(j *job) {
	if err := j.ctx.Err(); err != nil {
		d.abandon(j, err)
		return
	}

	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(d.closing, cancel)
	defer stop()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.abandon(j, d.gateErr(err))
		return
	}

	if err := d.waitForWindow(ctx); err != nil {
		d.sem.Release(1)
		d.abandon(j, d.gateErr(err))
		return
	}

	if j.spacer != nil {
		if err := j.spacer.Wait(ctx); err != nil {
			d.sem.Release(1)
			d.abandon(j, d.gateErr(err))
			return
		}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.sem.Release(1)
		d.abandon(j, ErrClosed)
		return
	}
	d.starts = append(d.starts, d.now())
	d.pending--
	d.inFlight++
	d.totalStarted++
	d.mu.Unlock()

	go d.execute(j)
}

// gateErr reports ErrClosed for a gate cut short by Close
func (d *Dispatcher) gateErr(err error) error {
	select {
	case <-d.closing.Done():
		return ErrClosed
	default:
		return err
	}
}

func (d *Dispatcher) abandon(j *job, err error) {
	d.mu.Lock()
	d.pending--
	d.mu.Unlock()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		j.result <- err
		return
	}
	j.result <- fmt.Errorf("dispatcher %s: %w", d.cfg.Name, err)
}

func (d *Dispatcher) execute(j *job) {
	var err error
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
		d.sem.Release(1)
		j.result <- err
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher %s: work panicked: %v", d.cfg.Name, r)
		}
	}()

	err = j.work(j.ctx)
}

// waitForWindow blocks until starting one more item keeps the window within MaxPerWindow
func (d *Dispatcher) waitForWindow(ctx context.Context) error {
	for {
		d.mu.Lock()
		now := d.now()
		d.pruneLocked(now)
		if len(d.starts) < d.cfg.MaxPerWindow {
			d.mu.Unlock()
			return nil
		}
		wait := d.cfg.Window - now.Sub(d.starts[0])
		d.mu.Unlock()

		if wait <= 0 {
			continue
		}

		d.log.Debug("rate window full, delaying start",
			logger.Duration("wait", wait),
			logger.Int("limit", d.cfg.MaxPerWindow),
			logger.Duration("window", d.cfg.Window),
		)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-d.closing.Done():
			timer.Stop()
			return ErrClosed
		}
	}
}

// pruneLocked drops start timestamps that have left the window (must hold mu)
func (d *Dispatcher) pruneLocked(now time.Time) {
	cutoff := 0
	for cutoff < len(d.starts) && now.Sub(d.starts[cutoff]) >= d.cfg.Window {
		cutoff++
	}
	if cutoff > 0 {
		d.starts = append(d.starts[:0], d.starts[cutoff:]...)
	}
}
