package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handler consumes log entries delivered by a Dispatcher.
type Handler func(Entry)

// Dispatcher hands log entries to slow consumers (journals, monitors) on a
// background worker so that the election never waits on them. Entries are
// delivered in publish order.
type Dispatcher struct {
	queue  chan Entry
	wg     sync.WaitGroup
	logger *zap.Logger

	mu       sync.Mutex
	closed   bool
	started  bool
	handlers []Handler

	dropped atomic.Uint64
	onDrop  func(Entry)
}

// NewDispatcher creates a dispatcher with room for queueSize pending entries.
func NewDispatcher(queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  make(chan Entry, queueSize),
		logger: logger,
	}
}

func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// OnDrop registers a callback invoked for every entry rejected by a full queue.
func (d *Dispatcher) OnDrop(fn func(Entry)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDrop = fn
}

// Start launches the delivery worker. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.worker()
}

// Publish queues entry for delivery without blocking. It reports false when
// the queue is full or the dispatcher is stopped; the entry is then dropped.
func (d *Dispatcher) Publish(entry Entry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- entry:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("event queue is full, entry dropped",
			zap.Uint64("index", entry.Index),
			zap.String("kind", string(entry.Event.Kind)))
		if d.onDrop != nil {
			d.onDrop(entry)
		}
		return false
	}
}

// Stop refuses new entries, delivers what is already queued and waits for
// the worker to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// Nothing will drain the queue; deliver inline.
		for entry := range d.queue {
			d.deliver(entry)
		}
		return
	}
	d.wg.Wait()
}

// Dropped returns how many entries were rejected so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for entry := range d.queue {
		d.deliver(entry)
	}
}

func (d *Dispatcher) deliver(entry Entry) {
	d.mu.Lock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.Unlock()

	for _, h := range handlers {
		d.safeCall(h, entry)
	}
}

func (d *Dispatcher) safeCall(h Handler, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.Uint64("index", entry.Index),
				zap.Any("panic", r))
		}
	}()
	h(entry)
}
