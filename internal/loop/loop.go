package loop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Func is one iteration of a periodic task. The context is cancelled as soon
// as the loop is stopped; work that commits shared state must check ctx.Err()
// first so a late result from a stopped loop is discarded.
type Func func(ctx context.Context)

// Loop runs a Func immediately on Start and then once per period until Stop.
// Start and Stop are idempotent and safe to call from any goroutine.
type Loop struct {
	name   string
	period time.Duration
	fn     Func

	mutex  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped loop.
func New(name string, period time.Duration, fn Func) *Loop {
	return &Loop{
		name:   name,
		period: period,
		fn:     fn,
	}
}

// Name returns the name used in log lines.
func (l *Loop) Name() string {
	return l.name
}

// Start launches the loop. It does nothing if the loop is already running.
func (l *Loop) Start() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.cancel != nil {
		slog.Debug("Loop already running", "loop", l.name)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx, l.done)
	slog.Debug("Loop started", "loop", l.name, "period", l.period)
}

// Stop cancels the loop and returns once the current iteration, if any, has
// observed the cancellation. Stopping a loop that was never started is a no-op.
func (l *Loop) Stop() {
	l.mutex.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mutex.Unlock()

	if cancel == nil {
		slog.Debug("Loop not attached, nothing to stop", "loop", l.name)
		return
	}

	cancel()
	<-done
	slog.Debug("Loop stopped", "loop", l.name)
}

// Running reports whether the loop has been started and not yet stopped.
func (l *Loop) Running() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.cancel != nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		l.fn(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
