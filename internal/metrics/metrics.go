// Package metrics exposes Prometheus counters for the media workers and the
// publishing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "screenpost"

type Metrics struct {
	MediaClaims          *prometheus.CounterVec
	MediaAttemptsExhaust *prometheus.CounterVec
	MediaInFlight        *prometheus.GaugeVec

	Publishes        *prometheus.CounterVec
	ThreadPublishes  *prometheus.CounterVec
	CredentialChecks *prometheus.CounterVec
}

// New registers the collectors on reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		MediaClaims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "claims_total",
			Help:      "Capture processing claims by kind and result",
		}, []string{"kind", "result"}),
		MediaAttemptsExhaust: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "attempts_exhausted_total",
			Help:      "Captures that reached the processing attempt cap",
		}, []string{"kind"}),
		MediaInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "in_flight",
			Help:      "Captures currently being processed by this worker",
		}, []string{"kind"}),
		Publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "posts_total",
			Help:      "Post publish attempts by result",
		}, []string{"result"}),
		ThreadPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "threads_total",
			Help:      "Thread publish attempts by result",
		}, []string{"result"}),
		CredentialChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credentials",
			Name:      "checks_total",
			Help:      "Credential validity checks by outcome",
		}, []string{"outcome"}),
	}
}
