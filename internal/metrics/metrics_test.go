package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObserveCheck("host-config-exists", true, 2*time.Millisecond)
	m.ObserveCheck("server-starts", false, time.Second)
	m.ObserveVerdict(false, time.Unix(100, 0))
	m.AddLogLines(5, 2)
	m.AddLogLines(1, 0)
	m.SetExitCode(3)

	if got := testutil.ToFloat64(m.checkPassed.WithLabelValues("host-config-exists")); got != 1 {
		t.Fatalf("expected host-config-exists passed 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.checkPassed.WithLabelValues("server-starts")); got != 0 {
		t.Fatalf("expected server-starts passed 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.checkDurationSeconds.WithLabelValues("server-starts")); got != 1 {
		t.Fatalf("expected server-starts duration 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.verifySuccess); got != 0 {
		t.Fatalf("expected verify success 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.verifyTimestampGauge); got != 100 {
		t.Fatalf("expected verify timestamp 100, got %v", got)
	}
	if got := testutil.ToFloat64(m.logLinesTotal.WithLabelValues("kept")); got != 6 {
		t.Fatalf("expected kept lines 6, got %v", got)
	}
	if got := testutil.ToFloat64(m.logLinesTotal.WithLabelValues("dropped")); got != 2 {
		t.Fatalf("expected dropped lines 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.childExitCode); got != 3 {
		t.Fatalf("expected exit code 3, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCheck("x", true, time.Second)
	m.ObserveVerdict(true, time.Now())
	m.AddLogLines(1, 1)
	m.SetExitCode(0)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil metrics should not write: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveVerdict(true, time.Unix(200, 0))

	path := filepath.Join(t.TempDir(), "collector", "labarchives.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "labarchives_mcp_verify_success 1") {
		t.Fatalf("textfile missing verify gauge:\n%s", data)
	}
}
