// Package metrics holds the bot's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so components can be built without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blitzbot"

// Event outcomes.
const (
	OutcomeDeal      = "deal"
	OutcomeCommand   = "command"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Metrics are the bot's instruments.
type Metrics struct {
	events        *prometheus.CounterVec
	dealsLogged   *prometheus.CounterVec
	dealsRemoved  prometheus.Counter
	commands      *prometheus.CounterVec
	cronRuns      *prometheus.CounterVec
	archives      prometheus.Counter
	queryDuration *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound message events by outcome.",
		}, []string{"outcome"}),
		dealsLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deals_logged_total",
			Help:      "Deals appended to the ledger by market.",
		}, []string{"market"}),
		dealsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deals_removed_total",
			Help:      "Deals removed with !remove.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled by kind.",
		}, []string{"kind"}),
		cronRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cron_runs_total",
			Help:      "Scheduled endpoint invocations by job and result.",
		}, []string{"job", "result"}),
		archives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_archives_total",
			Help:      "Completed ledger rotations.",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "leaderboard_seconds",
			Help:      "Time to build and render a leaderboard.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope"}),
	}
	reg.MustRegister(m.events, m.dealsLogged, m.dealsRemoved, m.commands,
		m.cronRuns, m.archives, m.queryDuration)
	return m
}

// Event counts one inbound event.
func (m *Metrics) Event(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

// DealLogged counts deals appended for a market.
func (m *Metrics) DealLogged(market string, count int) {
	if m == nil {
		return
	}
	m.dealsLogged.WithLabelValues(market).Add(float64(count))
}

// DealRemoved counts one removal.
func (m *Metrics) DealRemoved() {
	if m == nil {
		return
	}
	m.dealsRemoved.Inc()
}

// Command counts one handled command.
func (m *Metrics) Command(kind string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind).Inc()
}

// CronRun counts one scheduled endpoint call.
func (m *Metrics) CronRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cronRuns.WithLabelValues(job, result).Inc()
}

// Archived counts one completed rotation.
func (m *Metrics) Archived() {
	if m == nil {
		return
	}
	m.archives.Inc()
}

// ObserveLeaderboard records how long a leaderboard took since start.
func (m *Metrics) ObserveLeaderboard(scope string, start time.Time) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(scope).Observe(time.Since(start).Seconds())
}
