package hook

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ayusman/gyre/internal/gesture"
)

// DefaultQueueSize bounds the number of pending zone events.
const DefaultQueueSize = 64

// Result reports the outcome of one hook call.
type Result struct {
	Plugin   string
	Event    gesture.Event
	Response *Response
	Err      error
}

// Dispatcher runs hooks for zone events on a background goroutine so the
// render tick never waits on an external process.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	logger   *slog.Logger

	// OnResult, if set, is called after every hook call.
	OnResult func(Result)

	queue  chan gesture.Event
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(manager *Manager, executor *Executor, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		logger:   logger.With("component", "hook.dispatcher"),
		queue:    make(chan gesture.Event, queueSize),
	}
}

// Start launches the worker.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Dispatch queues events without blocking. Events are dropped when the
// queue is full.
func (d *Dispatcher) Dispatch(events ...gesture.Event) {
	for _, ev := range events {
		select {
		case d.queue <- ev:
		default:
			d.logger.Warn("hook queue full, dropping event", "zone", ev.ZoneID, "kind", ev.Kind)
		}
	}
}

// Close stops the worker after the call in progress finishes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev gesture.Event) {
	req := &Request{Event: string(ev.Kind), ZoneID: ev.ZoneID, At: ev.At}

	for _, p := range d.manager.Subscribers(string(ev.Kind), ev.ZoneID) {
		req.Config = p.Manifest.Config
		resp, err := d.executor.Execute(ctx, p, req)

		switch {
		case err != nil:
			d.logger.Warn("hook failed", "hook", p.Manifest.Name, "zone", ev.ZoneID, "kind", ev.Kind, "error", err)
		case !resp.Success:
			d.logger.Warn("hook reported failure", "hook", p.Manifest.Name, "zone", ev.ZoneID, "error", resp.Error)
		default:
			d.logger.Debug("hook ran", "hook", p.Manifest.Name, "zone", ev.ZoneID, "kind", ev.Kind)
		}

		if d.OnResult != nil {
			d.OnResult(Result{Plugin: p.Manifest.Name, Event: ev, Response: resp, Err: err})
		}
	}
}
