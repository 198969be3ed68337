package daemon

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/charlie0129/statsval/pkg/validation"
)

// Metrics are the Prometheus collectors exported on /metrics.
type Metrics struct {
	CheckRuns     *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
	Measurement   *prometheus.GaugeVec
	RunInProgress prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statsval_check_runs_total",
				Help: "Total number of finished checks",
			},
			[]string{"check", "status"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "statsval_check_duration_seconds",
				Help:    "Check duration in seconds, setup and teardown included",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"check"},
		),
		Measurement: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "statsval_measurement",
				Help: "Last value compared by a check, per source",
			},
			[]string{"check", "serial", "source"},
		),
		RunInProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "statsval_run_in_progress",
				Help: "1 while a validation run is in progress",
			},
		),
	}

	reg.MustRegister(m.CheckRuns)
	reg.MustRegister(m.CheckDuration)
	reg.MustRegister(m.Measurement)
	reg.MustRegister(m.RunInProgress)
	return m
}

// Observe records a finished check.
func (m *Metrics) Observe(r validation.Result) {
	m.CheckRuns.WithLabelValues(r.Check, string(r.Status)).Inc()
	m.CheckDuration.WithLabelValues(r.Check).Observe(r.Duration().Seconds())
	if r.Measurement != nil {
		m.Measurement.WithLabelValues(r.Check, r.Serial, "statsd").Set(r.Measurement.Statsd)
		m.Measurement.WithLabelValues(r.Check, r.Serial, "batterystats").Set(r.Measurement.BatteryStats)
	}
}

// SetRunInProgress flips the in-progress gauge.
func (m *Metrics) SetRunInProgress(running bool) {
	if running {
		m.RunInProgress.Set(1)
		return
	}
	m.RunInProgress.Set(0)
}
