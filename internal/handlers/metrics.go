package handlers

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	requests  *prometheus.CounterVec
	inference prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resnet_prediction_requests_total",
			Help: "Prediction requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		inference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resnet_inference_duration_seconds",
			Help:    "Time spent in the model forward pass.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	reg.MustRegister(m.requests, m.inference)
	return m
}

func (m *Metrics) observeRequest(endpoint string, status int) {
	m.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeInference(d time.Duration) {
	m.inference.Observe(d.Seconds())
}
