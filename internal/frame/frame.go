// Package frame schedules work against a render-loop stand-in.
//
// Change notifications arrive in bursts (infinite scroll, streaming
// updates); every consumer that coalesces them queues exactly one callback
// per frame, bounding processing to one pass per frame regardless of burst
// size.
package frame

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs a callback at the next frame boundary.
type Scheduler interface {
	Request(fn func())
}

// DefaultInterval approximates a 60 Hz render loop.
const DefaultInterval = 16 * time.Millisecond

// Ticker is a Scheduler driven by a wall-clock ticker. Callbacks requested
// during one frame all run, in request order, at the next tick, on a single
// goroutine — page-context work is serialised the way a host render loop
// serialises it.
type Ticker struct {
	interval time.Duration

	mu    sync.Mutex
	queue []func()
}

// NewTicker creates a Ticker. interval <= 0 uses DefaultInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval}
}

// Request queues fn for the next frame.
func (t *Ticker) Request(fn func()) {
	t.mu.Lock()
	t.queue = append(t.queue, fn)
	t.mu.Unlock()
}

// Run drives frames until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.step()
		}
	}
}

func (t *Ticker) step() {
	t.mu.Lock()
	batch := t.queue
	t.queue = nil
	t.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
}

// Manual is a Scheduler for tests: frames advance only when Step is called.
type Manual struct {
	mu    sync.Mutex
	queue []func()
}

// Request queues fn for the next Step.
func (m *Manual) Request(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// Step runs one frame and returns how many callbacks ran. Callbacks
// requested during Step run on the following Step, as in a real loop.
func (m *Manual) Step() int {
	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}
