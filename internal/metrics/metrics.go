// Package metrics exposes the agent's own health counters in Prometheus
// format. All collectors live on a private registry so that tests and
// multiple agents in one process do not collide.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "dstat_agent"

// Metrics holds the agent self-metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Cycles          prometheus.Counter
	CollectFailures *prometheus.CounterVec
	Records         prometheus.Counter
	CollectDuration prometheus.Histogram
	SinkWrites      *prometheus.CounterVec
}

// New creates and registers the agent self-metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of collection cycles started.",
		}),
		CollectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_failures_total",
			Help:      "Number of collection cycles that produced no records because of an error.",
		}, []string{"reason"}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Number of metric records emitted.",
		}),
		CollectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collect_duration_seconds",
			Help:      "Time spent in one collection, sampler run included.",
			Buckets:   []float64{0.1, 0.5, 1, 1.5, 2, 5, 10, 30},
		}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Number of batch writes per output sink and result.",
		}, []string{"sink", "result"}),
	}

	m.Registry.MustRegister(
		m.Cycles,
		m.CollectFailures,
		m.Records,
		m.CollectDuration,
		m.SinkWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CycleFinished records one collection cycle. reason is empty on success.
func (m *Metrics) CycleFinished(d time.Duration, records int, reason string) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CollectDuration.Observe(d.Seconds())
	if reason != "" {
		m.CollectFailures.WithLabelValues(reason).Inc()
		return
	}
	m.Records.Add(float64(records))
}

// SinkWrite records the result of one batch write.
func (m *Metrics) SinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SinkWrites.WithLabelValues(sink, result).Inc()
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving self-metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
