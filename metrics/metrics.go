// Package metrics exposes Prometheus instrumentation for the escrow
// services and the standalone metrics server wired into the HTTP base
// server.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the Prometheus registry on its own listener, kept
// separate from the API listener so scrapes never compete with requests.
type MetricsServer struct {
	srv      *http.Server
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	escrowed   *prometheus.GaugeVec
}

// New creates a metrics server for the given namespace and listen address.
// An empty address returns a server that only collects; ListenAndServe is a
// no-op then.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsServer{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "State machine operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		escrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "escrowed_value",
			Help:      "Value currently held in escrow, by asset.",
		}, []string{"asset"}),
	}
	registry.MustRegister(m.operations, m.escrowed)

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		m.srv = &http.Server{Addr: addr, Handler: mux}
	}

	return m, nil
}

// RecordOperation counts one state machine operation result.
func (m *MetricsServer) RecordOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// AddEscrowed tracks value entering (positive) or leaving (negative) escrow.
func (m *MetricsServer) AddEscrowed(asset string, delta float64) {
	m.escrowed.WithLabelValues(asset).Add(delta)
}

// ListenAndServe starts the metrics listener.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
