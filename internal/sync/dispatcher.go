package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"
)

// defaultUnitTimeout bounds a single dispatched unit when the caller does
// not choose one.
const defaultUnitTimeout = 10 * time.Second

// defaultQueueSize is the number of units that may wait behind the one
// currently running.
const defaultQueueSize = 1024

type unit struct {
	name string
	fn   func(ctx context.Context) error
}

// Dispatcher runs fire-and-forget side effects (broadcasts, audit writes)
// off the request path. Units run one at a time on a single worker, in the
// order they were submitted. A failing or panicking unit is logged and
// never reaches the caller. Wait blocks until every accepted unit has
// finished.
type Dispatcher struct {
	logger  *slog.Logger
	timeout time.Duration
	queue   chan unit

	wg     gosync.WaitGroup
	mu     gosync.Mutex
	closed bool
}

// NewDispatcher creates a Dispatcher and starts its worker. A zero timeout
// selects the default.
func NewDispatcher(logger *slog.Logger, timeout time.Duration) *Dispatcher {
	return newDispatcher(logger, timeout, defaultQueueSize)
}

func newDispatcher(logger *slog.Logger, timeout time.Duration, queueSize int) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultUnitTimeout
	}
	d := &Dispatcher{
		logger:  logger,
		timeout: timeout,
		queue:   make(chan unit, queueSize),
	}
	go d.work()
	return d
}

// Go queues fn behind every unit submitted before it. fn gets a context
// bounded by the dispatcher's timeout and detached from any request
// context, so a finished request does not cancel its side effects. Go
// never blocks: it returns false when the dispatcher is closed or the
// queue is full, and fn is dropped.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping side effect", "unit", name)
		return false
	}

	d.wg.Add(1)
	select {
	case d.queue <- unit{name: name, fn: fn}:
		return true
	default:
		d.wg.Done()
		d.logger.Warn("dispatch queue full, dropping side effect", "unit", name)
		return false
	}
}

func (d *Dispatcher) work() {
	for u := range d.queue {
		d.run(u.name, u.fn)
		d.wg.Done()
	}
}

// run executes one unit, converting panics to logged errors.
func (d *Dispatcher) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()

	if err != nil {
		d.logger.Error("side effect failed",
			"unit", name,
			"duration", time.Since(start),
			"error", err,
		)
		return
	}
	d.logger.Debug("side effect done", "unit", name, "duration", time.Since(start))
}

// Wait blocks until every unit accepted so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting new units and waits for outstanding ones, or
// until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for side effects: %w", ctx.Err())
	}
}
