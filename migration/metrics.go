package migration

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runner's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	StepsTotal    *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	SchemaVersion *prometheus.GaugeVec
}

// NewMetrics creates the runner collectors and registers them.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradestore",
			Name:      "migration_steps_total",
			Help:      "Migration steps run, by direction, version and outcome.",
		}, []string{"direction", "version", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tradestore",
			Name:      "migration_step_duration_seconds",
			Help:      "Wall time of one migration step including commit.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"direction"}),
		SchemaVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tradestore",
			Name:      "schema_version_info",
			Help:      "Set to 1 for the schema version the database is at.",
		}, []string{"version"}),
	}
	reg.MustRegister(m.StepsTotal, m.StepDuration, m.SchemaVersion)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the node-exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (m *Metrics) observeStep(direction, version, status string, d time.Duration) {
	m.StepsTotal.WithLabelValues(direction, version, status).Inc()
	m.StepDuration.WithLabelValues(direction).Observe(d.Seconds())
}

func (m *Metrics) setVersion(version string) {
	m.SchemaVersion.Reset()
	m.SchemaVersion.WithLabelValues(version).Set(1)
}
