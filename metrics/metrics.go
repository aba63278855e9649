// Package metrics counts what the bot does for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for command counters.
const (
	OutcomeOK       = "ok"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
	OutcomeCooldown = "cooldown"
	OutcomeNoTarget = "no_target"
	OutcomeEmpty    = "empty_corpus"
	OutcomeError    = "error"
)

// Recorder receives the bot's counters and gauges.
type Recorder interface {
	IncCommand(command, outcome string)
	IncRoast(source string)
	IncPersistErrors()
	IncCorpusReload(ok bool)
	SetCorpusLines(n int)
}

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	commandsTotal      *prometheus.CounterVec
	roastsTotal        *prometheus.CounterVec
	persistErrorsTotal prometheus.Counter
	corpusReloads      *prometheus.CounterVec
	corpusLines        prometheus.Gauge
}

// IncCommand counts one handled command.
func (m *Metrics) IncCommand(command, outcome string) {
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
}

// IncRoast counts one delivered roast.
func (m *Metrics) IncRoast(source string) {
	m.roastsTotal.WithLabelValues(source).Inc()
}

// IncPersistErrors counts one failed stats write.
func (m *Metrics) IncPersistErrors() {
	m.persistErrorsTotal.Inc()
}

// IncCorpusReload counts one reload attempt.
func (m *Metrics) IncCorpusReload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.corpusReloads.WithLabelValues(result).Inc()
}

// SetCorpusLines records the active corpus size.
func (m *Metrics) SetCorpusLines(n int) {
	m.corpusLines.Set(float64(n))
}

// New registers the bot's collectors on reg. When disabled it returns a
// recorder that drops everything and registers nothing.
func New(enabled bool, reg prometheus.Registerer) Recorder {
	if !enabled {
		return Noop{}
	}

	factory := promauto.With(reg)
	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roastbot_commands_total",
			Help: "Commands handled, by command and outcome",
		}, []string{"command", "outcome"}),

		roastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roastbot_roasts_total",
			Help: "Roasts delivered, by how the target was found",
		}, []string{"source"}),

		persistErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "roastbot_stats_persist_errors_total",
			Help: "Failed writes of the stats snapshot",
		}),

		corpusReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roastbot_corpus_reloads_total",
			Help: "Corpus reload attempts, by result",
		}, []string{"result"}),

		corpusLines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roastbot_corpus_lines",
			Help: "Lines in the active roast corpus",
		}),
	}
}

// Handler exposes everything gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Noop is used when metrics are disabled.
type Noop struct{}

func (Noop) IncCommand(_, _ string) {}
func (Noop) IncRoast(_ string)      {}
func (Noop) IncPersistErrors()      {}
func (Noop) IncCorpusReload(_ bool) {}
func (Noop) SetCorpusLines(_ int)   {}
