package jwtauth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for JWT authentication.
type Metrics struct {
	authTotal     *prometheus.CounterVec
	authDuration  *prometheus.HistogramVec
	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	keySetKeys    *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance and registers the collectors
// with reg. A nil reg leaves the collectors unregistered, which is useful
// in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	m := &Metrics{
		authTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt_auth",
				Name:      "authentication_total",
				Help:      "Total number of JWT authentication attempts",
			},
			[]string{"result", "kind"},
		),
		authDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jwt_auth",
				Name:      "authentication_duration_seconds",
				Help:      "Duration of JWT authentication attempts",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt_auth",
				Name:      "jwks_fetch_total",
				Help:      "Total number of key set retrievals per provider",
			},
			[]string{"provider", "status"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jwt_auth",
				Name:      "jwks_fetch_duration_seconds",
				Help:      "Duration of key set retrievals per provider",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		keySetKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "jwt_auth",
				Name:      "jwks_keys",
				Help:      "Number of keys in the last retrieved key set per provider",
			},
			[]string{"provider"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.authTotal, m.authDuration, m.fetchTotal, m.fetchDuration, m.keySetKeys)
	}

	return m
}

// RecordAuthentication records an authentication outcome.
func (m *Metrics) RecordAuthentication(result, kind string, duration time.Duration) {
	m.authTotal.WithLabelValues(result, kind).Inc()
	m.authDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordFetch records a key set retrieval outcome.
func (m *Metrics) RecordFetch(provider, status string, duration time.Duration) {
	m.fetchTotal.WithLabelValues(provider, status).Inc()
	m.fetchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordKeySetSize records the size of a retrieved key set.
func (m *Metrics) RecordKeySetSize(provider string, keys int) {
	m.keySetKeys.WithLabelValues(provider).Set(float64(keys))
}
