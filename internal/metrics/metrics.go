// Package metrics exposes prometheus collectors for the planner.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "missions"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OccurrencesCompleted *prometheus.CounterVec
	ExpGranted           prometheus.Counter
	GrantsDuplicate      prometheus.Counter
	LevelUps             prometheus.Counter
	SuggestionsOffered   prometheus.Counter
	SuggestionStatus     *prometheus.CounterVec
	JobRuns              *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		OccurrencesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_completed_total",
			Help:      "Occurrences marked done, by completion mode.",
		}, []string{"mode"}),
		ExpGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exp_granted_total",
			Help:      "EXP credited to users.",
		}),
		GrantsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exp_grants_duplicate_total",
			Help:      "Redelivered completion events ignored by the ledger.",
		}),
		LevelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level transitions.",
		}),
		SuggestionsOffered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_offered_total",
			Help:      "Suggestions created by daily generation.",
		}),
		SuggestionStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_transitions_total",
			Help:      "Suggestion status transitions.",
		}, []string{"status"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs, by job and result.",
		}, []string{"job", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OccurrencesCompleted,
		m.ExpGranted,
		m.GrantsDuplicate,
		m.LevelUps,
		m.SuggestionsOffered,
		m.SuggestionStatus,
		m.JobRuns,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Completed(mode string) {
	if m != nil {
		m.OccurrencesCompleted.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) Granted(exp int) {
	if m != nil && exp > 0 {
		m.ExpGranted.Add(float64(exp))
	}
}

func (m *Metrics) Duplicate() {
	if m != nil {
		m.GrantsDuplicate.Inc()
	}
}

func (m *Metrics) LeveledUp(levels int) {
	if m != nil && levels > 0 {
		m.LevelUps.Add(float64(levels))
	}
}

func (m *Metrics) Offered(n int) {
	if m != nil && n > 0 {
		m.SuggestionsOffered.Add(float64(n))
	}
}

func (m *Metrics) Transitioned(status string) {
	if m != nil {
		m.SuggestionStatus.WithLabelValues(status).Inc()
	}
}

// Job records one scheduled job run.
func (m *Metrics) Job(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(name, result).Inc()
}
