package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Transitions          *prometheus.CounterVec
	PaymentConfirmations *prometheus.CounterVec
	CashCollections      prometheus.Counter
	Refunds              *prometheus.CounterVec
	StoreConflicts       *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Booking status transitions applied",
		}, []string{"from", "to"}),
		PaymentConfirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Gateway payment confirmations received",
		}, []string{"outcome", "replayed"}),
		CashCollections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cash_collections_total",
			Help:      "Cash legs marked collected",
		}),
		Refunds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund steps by method and result",
		}, []string{"method", "result"}),
		StoreConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_conflicts_total",
			Help:      "Optimistic version conflicts by operation",
		}, []string{"operation"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Confirmation(outcome string, replayed bool) {
	if m == nil {
		return
	}
	r := "false"
	if replayed {
		r = "true"
	}
	m.PaymentConfirmations.WithLabelValues(outcome, r).Inc()
}

func (m *Metrics) CashCollected() {
	if m == nil {
		return
	}
	m.CashCollections.Inc()
}

func (m *Metrics) Refund(method, result string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(method, result).Inc()
}

func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.StoreConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
