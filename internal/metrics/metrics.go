// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/briangreenhill/formcoach/internal/load"
)

const namespace = "formcoach"

// Recorder satisfies the metrics interfaces of the plan and proposal packages.
type Recorder struct {
	reg *prometheus.Registry

	classifications *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	commits         *prometheus.CounterVec
	moveWarnings    *prometheus.CounterVec
	requests        *prometheus.HistogramVec
	tasks           *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Snapshots classified, by form status.",
		}, []string{"status"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by classification, by code and severity.",
		}, []string{"code", "severity"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposal_transitions_total",
			Help:      "Proposal stage transitions.",
		}, []string{"from", "to"}),
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_commits_total",
			Help:      "Plan commit attempts, by modification kind and outcome.",
		}, []string{"kind", "outcome"}),
		moveWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "move_warnings_total",
			Help:      "Warnings produced by move validation.",
		}, []string{"code", "severity"}),
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method", "class"}),
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Background tasks processed, by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) Classified(status string, alerts []load.Alert) {
	r.classifications.WithLabelValues(status).Inc()
	for _, a := range alerts {
		r.alerts.WithLabelValues(a.Code, a.Severity.String()).Inc()
	}
}

func (r *Recorder) ProposalTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) PlanCommit(kind, outcome string) {
	r.commits.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) MoveWarning(code, severity string) {
	r.moveWarnings.WithLabelValues(code, severity).Inc()
}

func (r *Recorder) ObserveRequest(route, method string, status int, seconds float64) {
	r.requests.WithLabelValues(route, method, statusClass(status)).Observe(seconds)
}

func (r *Recorder) TaskProcessed(taskType, outcome string) {
	r.tasks.WithLabelValues(taskType, outcome).Inc()
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
