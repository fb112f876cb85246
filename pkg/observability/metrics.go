package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Halt outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeHalted    = "halted"
)

// Metrics holds the Prometheus collectors fed by the run hooks.
type Metrics struct {
	NodeVisits *prometheus.CounterVec
	NodeLeaves *prometheus.CounterVec
	RunsEnded  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses a fresh registry, which keeps tests and multiple servers
// in one process independent.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "node_visits_total",
			Help:      "Total number of nodes entered by simulated runs.",
		}, []string{"kind"}),
		NodeLeaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "node_leaves_total",
			Help:      "Total number of nodes left by simulated runs.",
		}, []string{"kind"}),
		RunsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "runs_ended_total",
			Help:      "Total number of simulated runs that completed or halted.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.NodeVisits, m.NodeLeaves, m.RunsEnded)
	return m
}

// Hooks returns the lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.NodeKind)).Inc()
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeLeaves.WithLabelValues(string(e.NodeKind)).Inc()
		},
		OnHalt: func(ctx context.Context, e *domain.HaltEvent) {
			outcome := OutcomeCompleted
			if e.Reason != "" {
				outcome = OutcomeHalted
			}
			m.RunsEnded.WithLabelValues(outcome).Inc()
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
