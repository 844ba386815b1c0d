// Package pipeline decorates collected records and delivers them to the
// configured outputs. Records are queued so that slow outputs apply
// back-pressure to the poll loop instead of being dropped.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/metrics"
	"github.com/Guliveer/dstat-agent/internal/models"
)

// flushTimeout bounds a single batch write to all sinks.
const flushTimeout = 30 * time.Second

// Sink is an output that accepts batches of events.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []models.Event) error
}

// Options controls queueing and batching.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Pipeline queues decorated events and writes them to every sink in
// batches.
type Pipeline struct {
	decorator Decorator
	sinks     []Sink
	opts      Options
	logger    *zap.Logger
	metrics   *metrics.Metrics

	queue     chan models.Event
	mu        sync.RWMutex // Emit holds the read lock while sending
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a pipeline. Run must be started before records are emitted.
func New(d Decorator, opts Options, logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Pipeline{
		decorator: d,
		sinks:     sinks,
		opts:      opts,
		logger:    logger.Named("pipeline"),
		metrics:   m,
		queue:     make(chan models.Event, opts.QueueSize),
		done:      make(chan struct{}),
	}
}

// Emit decorates r and queues it, blocking while the queue is full.
// Records emitted after Close are dropped.
func (p *Pipeline) Emit(r models.MetricRecord) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("Pipeline closed, dropping record", zap.String("stat", r.Stat))
		return
	}
	p.queue <- p.decorator.Decorate(r)
}

// Run drains the queue until Close is called, writing a batch whenever
// BatchSize events are pending or FlushInterval elapses.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.Event, 0, p.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.write(ctx, batch)
		batch = make([]models.Event, 0, p.opts.BatchSize)
	}

	for {
		select {
		case ev, ok := <-p.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= p.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops accepting records and waits for Run to write what is
// already queued.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	<-p.done
}

// write hands the batch to every sink. Sink failures are logged and
// counted; they never stop delivery to the other sinks.
func (p *Pipeline) write(ctx context.Context, batch []models.Event) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	for _, s := range p.sinks {
		err := s.Write(writeCtx, batch)
		p.metrics.SinkWrite(s.Name(), err)
		if err != nil {
			p.logger.Error("Sink write failed",
				zap.String("sink", s.Name()),
				zap.Int("events", len(batch)),
				zap.Error(err))
		}
	}
}
