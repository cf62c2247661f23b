package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps Prometheus collectors for the launcher.
type Metrics struct {
	registry             *prometheus.Registry
	checkPassed          *prometheus.GaugeVec
	checkDurationSeconds *prometheus.GaugeVec
	verifySuccess        prometheus.Gauge
	verifyTimestampGauge prometheus.Gauge
	logLinesTotal        *prometheus.CounterVec
	childExitCode        prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		checkPassed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "labarchives_mcp_check_passed",
			Help: "1 if the named verification check passed in the last run, 0 otherwise.",
		}, []string{"check"}),
		checkDurationSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "labarchives_mcp_check_duration_seconds",
			Help: "Duration of the named verification check in the last run.",
		}, []string{"check"}),
		verifySuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labarchives_mcp_verify_success",
			Help: "1 if the last verification passed, 0 otherwise.",
		}),
		verifyTimestampGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labarchives_mcp_verify_timestamp_seconds",
			Help: "Unix timestamp of the last verification run.",
		}),
		logLinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labarchives_mcp_log_lines_total",
			Help: "Server output lines seen in run mode by disposition.",
		}, []string{"disposition"}),
		childExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labarchives_mcp_server_exit_code",
			Help: "Exit code of the server the last time run mode stopped.",
		}),
	}

	registry.MustRegister(
		m.checkPassed,
		m.checkDurationSeconds,
		m.verifySuccess,
		m.verifyTimestampGauge,
		m.logLinesTotal,
		m.childExitCode,
	)

	return m
}

// ObserveCheck records the outcome of one verification check.
func (m *Metrics) ObserveCheck(name string, passed bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkPassed.WithLabelValues(name).Set(boolToFloat(passed))
	m.checkDurationSeconds.WithLabelValues(name).Set(duration.Seconds())
}

// ObserveVerdict records the overall verification outcome.
func (m *Metrics) ObserveVerdict(passed bool, at time.Time) {
	if m == nil {
		return
	}
	m.verifySuccess.Set(boolToFloat(passed))
	m.verifyTimestampGauge.Set(float64(at.Unix()))
}

// AddLogLines counts kept and dropped server output lines.
func (m *Metrics) AddLogLines(kept, dropped int) {
	if m == nil {
		return
	}
	m.logLinesTotal.WithLabelValues("kept").Add(float64(kept))
	m.logLinesTotal.WithLabelValues("dropped").Add(float64(dropped))
}

// SetExitCode records the server's exit code.
func (m *Metrics) SetExitCode(code int) {
	if m == nil {
		return
	}
	m.childExitCode.Set(float64(code))
}

// WriteTextfile writes the registry in text exposition format for a
// node_exporter textfile collector. The parent directory is created if needed.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
