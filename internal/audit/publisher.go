// Package audit records what happened during registration visits.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

const (
	defaultBufferSize    = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
)

// Publisher captures audit events without blocking the caller. Emit only
// enqueues; Run drains the queue into the store in batches.
type Publisher struct {
	store         Store
	buffer        *ringBuffer
	batchSize     int
	flushInterval time.Duration
	metrics       *Metrics
	logger        *slog.Logger
	now           func() time.Time
	wake          chan struct{}
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = newRingBuffer(n)
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        newRingBuffer(defaultBufferSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default(),
		now:           time.Now,
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and enqueues an event. A nil publisher drops it.
func (p *Publisher) Emit(_ context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if p.buffer.enqueue(event) {
		p.metrics.IncDropped()
	}
	p.metrics.IncEmitted()
	if p.buffer.len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Run persists queued events until ctx is done, then flushes what is left
// with a short grace period.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			err := p.Flush(flushCtx)
			cancel()
			if err != nil {
				p.logger.ErrorContext(ctx, "audit events lost on shutdown", "error", err, "pending", p.Pending())
			}
			return ctx.Err()
		case <-ticker.C:
		case <-p.wake:
		}
		if err := p.Flush(ctx); err != nil {
			p.logger.WarnContext(ctx, "failed to persist audit events", "error", err)
		}
	}
}

// Flush writes every queued event. A failed batch goes back on the queue.
func (p *Publisher) Flush(ctx context.Context) error {
	for {
		batch := p.buffer.dequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.Append(ctx, batch...); err != nil {
			p.buffer.requeue(batch)
			p.metrics.IncPersistFailure()
			return err
		}
	}
}

// Pending returns the number of events not yet persisted.
func (p *Publisher) Pending() int {
	return p.buffer.len()
}

// ListByVisit returns a visit's events in the order they happened, including
// those still queued for the store.
func (p *Publisher) ListByVisit(ctx context.Context, visitID id.VisitID) ([]Event, error) {
	if p == nil {
		return nil, nil
	}
	stored, err := p.store.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(stored))
	for _, e := range stored {
		seen[e.ID] = struct{}{}
	}
	queued := p.buffer.pending(func(e Event) bool { return e.VisitID == visitID })
	for _, e := range queued {
		if _, ok := seen[e.ID]; !ok {
			stored = append(stored, e)
		}
	}
	return stored, nil
}

// Metrics counts audit throughput.
type Metrics struct {
	Emitted         prometheus.Counter
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "genlive_audit_events_emitted_total",
			Help: "Audit events accepted for persistence",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "genlive_audit_events_dropped_total",
			Help: "Audit events dropped because the queue was full",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "genlive_audit_persist_failures_total",
			Help: "Audit batches that failed to persist",
		}),
	}
}

func (m *Metrics) IncEmitted() {
	if m == nil {
		return
	}
	m.Emitted.Inc()
}

func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}
