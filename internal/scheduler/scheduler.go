// Package scheduler implements the periodic collect-emit-sleep loop.
// It runs one collection at a time and hands every record to a callback;
// it does not deliver data itself.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/collector"
	"github.com/Guliveer/dstat-agent/internal/metrics"
	"github.com/Guliveer/dstat-agent/internal/models"
)

// stopPollInterval bounds how long the inter-cycle sleep goes without
// checking the stop condition.
const stopPollInterval = 100 * time.Millisecond

// Scheduler drives periodic collection.
type Scheduler struct {
	collector collector.Collector
	interval  time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics

	onRecord func(models.MetricRecord)
	stopWhen func() bool
}

// New creates a new Scheduler polling c every interval.
func New(c collector.Collector, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		collector: c,
		interval:  interval,
		logger:    logger.Named("scheduler"),
		metrics:   m,
	}
}

// OnRecord sets the callback invoked for every collected record, in
// column order.
func (s *Scheduler) OnRecord(fn func(models.MetricRecord)) {
	s.onRecord = fn
}

// StopWhen sets an extra stop condition polled before each cycle and
// during the sleep between cycles. Cancelling the Start context has the
// same effect.
func (s *Scheduler) StopWhen(fn func() bool) {
	s.stopWhen = fn
}

// Start runs collection cycles until a stop is requested. The first cycle
// runs immediately. A sampler already running when stop is requested is
// allowed to finish.
func (s *Scheduler) Start(ctx context.Context) {
	for !s.stopped(ctx) {
		s.RunOnce(ctx)
		if s.sleep(ctx) {
			return
		}
	}
}

// RunOnce performs a single collection and emits its records. Errors are
// logged and returned; they never stop the loop.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	records, err := s.collector.Collect(ctx)
	elapsed := time.Since(start)

	if err != nil {
		reason := collector.FailureReason(err)
		s.metrics.CycleFinished(elapsed, 0, reason)
		s.logger.Error("Collection failed",
			zap.String("collector", s.collector.Name()),
			zap.String("reason", reason),
			zap.Error(err))
		return 0, err
	}

	for _, r := range records {
		if s.onRecord != nil {
			s.onRecord(r)
		}
	}
	s.metrics.CycleFinished(elapsed, len(records), "")

	s.logger.Debug("Collected records",
		zap.Int("records", len(records)),
		zap.Duration("took", elapsed))
	return len(records), nil
}

// sleep waits for the interval, waking every stopPollInterval to check
// the stop condition. It returns true if a stop was requested.
func (s *Scheduler) sleep(ctx context.Context) bool {
	deadline := time.NewTimer(s.interval)
	defer deadline.Stop()
	poll := time.NewTicker(stopPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-deadline.C:
			return s.stopped(ctx)
		case <-poll.C:
			if s.stopped(ctx) {
				return true
			}
		}
	}
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.stopWhen != nil && s.stopWhen()
}
