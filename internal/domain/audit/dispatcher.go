package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"linkproxy/internal/shared/logger"
)

var (
	auditTracer      = otel.Tracer("linkproxy/audit")
	auditMeter       = otel.Meter("linkproxy/audit")
	sinkDuration, _  = auditMeter.Float64Histogram("audit.sink.duration", metric.WithDescription("Audit sink write duration in seconds"), metric.WithUnit("s"))
	sinkWrites, _    = auditMeter.Int64Counter("audit.sink.writes", metric.WithDescription("Audit sink writes by sink and status"))
	eventsDropped, _ = auditMeter.Int64Counter("audit.events.dropped", metric.WithDescription("Audit events dropped due to a full queue"))
)

// ErrQueueFull is returned by Submit when the event was dropped.
var ErrQueueFull = errors.New("audit queue full")

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("audit dispatcher closed")

// sinkTimeout bounds a single sink write.
const sinkTimeout = 5 * time.Second

// Dispatcher delivers events to sinks from a fixed set of worker goroutines.
// Submit never blocks: when the queue is full the event is dropped and
// counted.
type Dispatcher struct {
	sinks       []Sink
	workerCount int
	events      chan *Event

	mu     sync.RWMutex
	closed bool

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	dropped atomic.Int64
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher. With no sinks it accepts and discards
// every event without starting workers.
func NewDispatcher(workerCount, queueSize int, sinks ...Sink) *Dispatcher {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		sinks:       sinks,
		workerCount: workerCount,
		events:      make(chan *Event, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.For("audit"),
	}
}

// Enabled reports whether any sink is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.sinks) > 0
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	if !d.Enabled() {
		d.log.Info().Msg("no audit sinks configured, audit disabled")
		return
	}

	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	d.log.Info().Int("workers", d.workerCount).Strs("sinks", names).Msg("starting audit dispatcher")

	for i := 1; i <= d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for e := range d.events {
		d.deliver(id, e)
	}
}

// deliver writes e to every sink. A failing sink does not stop the others.
func (d *Dispatcher) deliver(workerID int, e *Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(d.ctx, sinkTimeout)
		ctx, span := auditTracer.Start(ctx, "audit.write",
			trace.WithAttributes(
				attribute.Int("worker.id", workerID),
				attribute.String("audit.sink", s.Name()),
				attribute.String("audit.operation", e.Operation),
			),
		)

		start := time.Now()
		err := s.Write(ctx, e)
		attrs := metric.WithAttributes(attribute.String("sink", s.Name()), attribute.String("status", statusLabel(err)))
		sinkWrites.Add(ctx, 1, attrs)
		sinkDuration.Record(ctx, time.Since(start).Seconds(), attrs)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.log.Warn().Err(err).
				Str("sink", s.Name()).
				Str("event_id", e.ID).
				Str("operation", e.Operation).
				Msg("audit sink write failed")
		}
		span.End()
		cancel()
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Submit queues e for delivery, filling in ID and OccurredAt when unset.
func (d *Dispatcher) Submit(e *Event) error {
	if !d.Enabled() {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.events <- e:
		return nil
	default:
		d.dropped.Add(1)
		eventsDropped.Add(context.Background(), 1)
		d.log.Warn().Str("operation", e.Operation).Msg("audit queue full, dropping event")
		return ErrQueueFull
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
// If ctx expires first, in-flight sink writes are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.log.Info().Int64("dropped", d.Dropped()).Msg("audit dispatcher drained")
		return nil
	case <-ctx.Done():
		d.cancel()
		d.log.Warn().Msg("audit dispatcher shutdown timed out, cancelling sink writes")
		return ctx.Err()
	}
}
