// Package timeservice provides a single-goroutine executor that
// serializes all mutations to connection and stream state without
// locks: callers hand it work with Async, and timers/tickers created
// through it redirect their fired callbacks back through the same
// queue instead of running on the time package's own goroutines.
package timeservice

import (
	"context"
	"time"
)

// Executor runs queued work on a single goroutine. Nothing queued
// through Async or fired by a Timer/Ticker created via this Executor
// ever runs concurrently with anything else queued through it.
type Executor struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan func()
}

// NewExecutor creates an Executor. Call Run on the goroutine that
// should host the work; call Stop to unblock it.
func NewExecutor() *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan func(), 256),
	}
}

// Run drains queued jobs until Stop is called. Intended to be the
// entire body of the goroutine that owns the executor's state.
func (e *Executor) Run() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.jobs:
			fn()
		}
	}
}

// Stop unblocks Run. Jobs still queued when Stop is called are
// dropped.
func (e *Executor) Stop() {
	e.cancel()
}

// Async queues fn to run on the executor's goroutine. Safe to call
// from any goroutine, including from within a job already running on
// the executor. Silently dropped if the executor has been stopped.
func (e *Executor) Async(fn func()) {
	select {
	case e.jobs <- fn:
	case <-e.ctx.Done():
	}
}

// Now returns the current wall-clock time. A thin wrapper so callers
// depend on the executor rather than the time package directly,
// leaving room for a fake clock in tests.
func (e *Executor) Now() time.Time {
	return time.Now()
}

// Timer is a single-shot callback scheduled through an Executor.
type Timer struct {
	t *time.Timer
}

// CreateTimer schedules fn to run on the executor's goroutine after
// d elapses.
func (e *Executor) CreateTimer(d time.Duration, fn func()) *Timer {
	t := time.AfterFunc(d, func() {
		e.Async(fn)
	})
	return &Timer{t: t}
}

// Stop cancels the timer. Returns false if the timer already fired or
// was already stopped.
func (t *Timer) Stop() bool {
	return t.t.Stop()
}

// Reset reschedules the timer to fire after d from now.
func (t *Timer) Reset(d time.Duration) bool {
	return t.t.Reset(d)
}

// Ticker is a repeating callback scheduled through an Executor.
type Ticker struct {
	ticker *time.Ticker
	stop   chan struct{}
}

// CreateTicker schedules fn to run on the executor's goroutine every
// d until the returned Ticker is stopped.
func (e *Executor) CreateTicker(d time.Duration, fn func()) *Ticker {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})
	t := &Ticker{ticker: ticker, stop: stop}

	go func() {
		for {
			select {
			case <-ticker.C:
				e.Async(fn)
			case <-stop:
				return
			case <-e.ctx.Done():
				return
			}
		}
	}()

	return t
}

// Stop halts the ticker. Safe to call once; a second call panics, as
// with closing an already-closed channel.
func (t *Ticker) Stop() {
	t.ticker.Stop()
	close(t.stop)
}
