package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketflow/metrics"
)

// Sink delivers events to one downstream system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
}

// Dispatcher fans events out to sinks from a single background worker.
// Emit never blocks the caller; events are dropped when the queue is full.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(logger *zap.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		queue:   make(chan Event, buffer),
		sinks:   sinks,
		logger:  logger,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Emit(e Event) {
	select {
	case d.queue <- e:
	default:
		metrics.EventsDropped.Inc()
		d.logger.Warn("settlement event dropped",
			zap.String("transaction_id", e.TransactionID),
			zap.String("to_status", e.ToStatus),
		)
	}
}

// Start runs the delivery worker until Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for e := range d.queue {
		d.deliver(ctx, e)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		err := s.Publish(sctx, e)
		cancel()
		if err != nil {
			metrics.EventsPublished.WithLabelValues(s.Name(), "error").Inc()
			d.logger.Warn("settlement event delivery failed",
				zap.String("sink", s.Name()),
				zap.String("transaction_id", e.TransactionID),
				zap.Error(err),
			)
			continue
		}
		metrics.EventsPublished.WithLabelValues(s.Name(), "ok").Inc()
	}
}

// Close stops accepting events and waits for queued ones to drain or ctx to end.
// Emit must not be called after Close.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { close(d.queue) })
	d.Start(ctx)
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
