// Package metrics holds the Prometheus collectors for crawling and generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "testforge"

// Fetch outcomes
const (
	FetchOK          = "ok"
	FetchRateLimited = "rate_limited"
	FetchError       = "error"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	Pages         *prometheus.CounterVec
	Sessions      *prometheus.CounterVec
	Turns         prometheus.Counter
	RunPolls      prometheus.Counter
}

// New creates and registers all collectors on reg. A nil reg falls back to the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawl",
			Name:      "fetch_attempts_total",
			Help:      "HTTP fetch attempts by outcome",
		}, []string{"outcome"}),
		Pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crawl",
			Name:      "pages_total",
			Help:      "Fetched pages by validation result",
		}, []string{"result"}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "sessions_total",
			Help:      "Generation sessions by final status",
		}, []string{"status"}),
		Turns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "responder_turns_total",
			Help:      "Responder turns received from the backend",
		}),
		RunPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "run_polls_total",
			Help:      "Run status polls sent to the backend",
		}),
	}
}

// ObserveFetch counts one fetch attempt.
func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
}

// ObservePage counts one fetched page as accepted or rejected.
func (m *Metrics) ObservePage(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.Pages.WithLabelValues(result).Inc()
}

// ObserveSession counts one finished session.
func (m *Metrics) ObserveSession(status string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(status).Inc()
}

// ObserveTurn counts one responder turn.
func (m *Metrics) ObserveTurn() {
	if m == nil {
		return
	}
	m.Turns.Inc()
}

// ObservePoll counts one run status poll.
func (m *Metrics) ObservePoll() {
	if m == nil {
		return
	}
	m.RunPolls.Inc()
}
