// Package metrics exposes the bridge's Prometheus instruments and the
// HTTP endpoint that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"s8bridge/internal/classify"
)

// Metrics holds the bridge's instruments on a dedicated registry, so
// the scrape surface carries exactly these series plus nothing
// inherited from the default registry.
type Metrics struct {
	registry *prometheus.Registry

	concentration prometheus.Gauge
	level         *prometheus.GaugeVec
	alerts        *prometheus.CounterVec
}

// New creates and registers the instruments. Every level gauge is
// initialized to 0 so scrapes before the first reading already see the
// full label set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		concentration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "co2_concentration_ppm",
			Help: "Current CO2 concentration in parts per million.",
		}),
		level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "co2_level",
			Help: "CO2 severity classification, 1 for the active level and 0 for the rest.",
		}, []string{"level"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "co2_alerts_total",
			Help: "Cycles that classified at an alerting severity.",
		}, []string{"severity"}),
	}
	m.registry.MustRegister(m.concentration, m.level, m.alerts)

	for _, lvl := range classify.Levels() {
		m.level.WithLabelValues(string(lvl)).Set(0)
	}
	return m
}

// Registry exposes the underlying registry so callers can gather the
// bridge's series, for example in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveReading records one successful cycle: the absolute gauge, the
// one-hot level indicator, and the alert counter for severe levels.
func (m *Metrics) ObserveReading(ppm int, level classify.Level) {
	m.concentration.Set(float64(ppm))

	for _, lvl := range classify.Levels() {
		m.level.WithLabelValues(string(lvl)).Set(0)
	}
	m.level.WithLabelValues(string(level)).Set(1)

	if level.Severe() {
		m.alerts.WithLabelValues(string(level)).Inc()
	}
}
