package observability

import (
	"time"

	"github.com/aretw0/keystone/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	SessionsStarted prometheus.Counter
	ActiveSessions  prometheus.Gauge
	StepVisits      *prometheus.CounterVec
	GatesShown      prometheus.Counter
	Submissions     *prometheus.CounterVec
	StoreOps        *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keystone_sessions_started_total",
			Help: "Total number of survey sessions started",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keystone_sessions_active",
			Help: "Number of live survey sessions",
		}),
		StepVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_step_visits_total",
				Help: "Total number of step entries",
			},
			[]string{"step_kind"},
		),
		GatesShown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keystone_email_gates_shown_total",
			Help: "Total number of times the email gate was shown",
		}),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_submissions_total",
				Help: "Email submissions by outcome",
			},
			[]string{"result"},
		),
		StoreOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_store_operations_total",
				Help: "Response store operations by outcome",
			},
			[]string{"op", "result"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keystone_store_operation_duration_seconds",
				Help:    "Duration of response store operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keystone_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.SessionsStarted,
			m.ActiveSessions,
			m.StepVisits,
			m.GatesShown,
			m.Submissions,
			m.StoreOps,
			m.StoreDuration,
			m.HTTPRequests,
		)
	}
	return m
}

// ObserveStore records one store operation.
func (m *Metrics) ObserveStore(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = string(domain.KindOf(err))
	}
	m.StoreOps.WithLabelValues(op, result).Inc()
	m.StoreDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
