// Package metrics exposes prometheus counters for group resolution.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one run, registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	GroupsTotal         *prometheus.CounterVec
	RecordsInTotal      *prometheus.CounterVec
	RecordsOutTotal     *prometheus.CounterVec
	RecordsSkippedTotal *prometheus.CounterVec
	GroupDuration       *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GroupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "georesolve_groups_total",
			Help: "Groups resolved, by mode and outcome",
		}, []string{"mode", "outcome"}),
		RecordsInTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "georesolve_records_in_total",
			Help: "Records read into resolution",
		}, []string{"mode"}),
		RecordsOutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "georesolve_records_out_total",
			Help: "Records emitted by resolution",
		}, []string{"mode"}),
		RecordsSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "georesolve_records_skipped_total",
			Help: "Records or fragments skipped, by reason",
		}, []string{"mode", "reason"}),
		GroupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "georesolve_group_duration_seconds",
			Help:    "Wall time to resolve one group",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 60},
		}, []string{"mode"}),
	}
	m.registry.MustRegister(
		m.GroupsTotal,
		m.RecordsInTotal,
		m.RecordsOutTotal,
		m.RecordsSkippedTotal,
		m.GroupDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveGroup records one finished group.
func (m *Metrics) ObserveGroup(mode, outcome string, in, out int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GroupsTotal.WithLabelValues(mode, outcome).Inc()
	m.RecordsInTotal.WithLabelValues(mode).Add(float64(in))
	m.RecordsOutTotal.WithLabelValues(mode).Add(float64(out))
	m.GroupDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveSkipped records skipped records by reason.
func (m *Metrics) ObserveSkipped(mode string, skipped map[string]int) {
	if m == nil {
		return
	}
	for reason, n := range skipped {
		m.RecordsSkippedTotal.WithLabelValues(mode, reason).Add(float64(n))
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
