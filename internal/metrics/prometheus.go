package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okanek/campaign/types"
)

// PrometheusCollector implements types.MetricsCollector backed by
// Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	transitions  *prometheus.CounterVec
	claims       *prometheus.CounterVec
	retries      *prometheus.CounterVec
	leadership   prometheus.Gauge
	claimLatency prometheus.Histogram
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "campaign" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "campaign"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "state_transitions_total",
			Help:      "Total election state transitions by from/to state.",
		}, []string{"from", "to"})

		p.claims = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "claims_total",
			Help:      "Total claim attempts by outcome (won,lost,ambiguous).",
		}, []string{"outcome"})

		p.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "retries_total",
			Help:      "Total transient-error retries by operation (resolve,track,renew).",
		}, []string{"op"})

		p.leadership = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "is_leader",
			Help:      "Whether this candidate currently is the leader (1=leader,0=not).",
		})

		p.claimLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "claim_latency_seconds",
			Help:      "Latency of claim attempts in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		})

		p.reg.MustRegister(p.transitions)
		p.reg.MustRegister(p.claims)
		p.reg.MustRegister(p.retries)
		p.reg.MustRegister(p.leadership)
		p.reg.MustRegister(p.claimLatency)
	})
}

// IncrementTransition counts a state transition.
func (p *PrometheusCollector) IncrementTransition(from, to types.State) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// IncrementClaim counts a claim attempt outcome.
func (p *PrometheusCollector) IncrementClaim(outcome string) {
	p.ensureRegistered()
	p.claims.WithLabelValues(outcome).Inc()
}

// IncrementRetry counts a transient-error retry for the given op.
func (p *PrometheusCollector) IncrementRetry(op string) {
	p.ensureRegistered()
	p.retries.WithLabelValues(op).Inc()
}

// SetLeadership sets the leadership gauge.
func (p *PrometheusCollector) SetLeadership(leader bool) {
	p.ensureRegistered()
	if leader {
		p.leadership.Set(1)
	} else {
		p.leadership.Set(0)
	}
}

// ObserveClaimLatency observes claim latency.
func (p *PrometheusCollector) ObserveClaimLatency(seconds float64) {
	p.ensureRegistered()
	p.claimLatency.Observe(seconds)
}
