// Package metrics exposes the Prometheus instrumentation of the
// prediction service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors of the prediction path. Each
// instance carries its own registry so tests can run side by side.
type Metrics struct {
	registry *prometheus.Registry

	predictions *prometheus.CounterVec
	latency     prometheus.Histogram
	errors      prometheus.Counter
}

// New builds a registry with the prediction collectors plus the
// standard Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions",
		}, []string{"predicted_class"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "prediction_latency_seconds",
			Help: "Prediction latency",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of prediction errors",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePrediction records one successful prediction and its
// latency.
func (m *Metrics) ObservePrediction(predictedClass string, seconds float64) {
	m.predictions.WithLabelValues(predictedClass).Inc()
	m.latency.Observe(seconds)
}

// IncError counts one failed prediction.
func (m *Metrics) IncError() {
	m.errors.Inc()
}

// Handler serves the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
