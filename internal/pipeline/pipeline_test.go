package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"
)

type fakeProber struct {
	result check.Result
	calls  int
}

func (f *fakeProber) Name() string { return "server-starts" }

func (f *fakeProber) Probe(context.Context) check.Result {
	f.calls++
	return f.result
}

type recordedCheck struct {
	name   string
	passed bool
}

type fakeRecorder struct {
	checks   []recordedCheck
	verdicts []bool
}

func (r *fakeRecorder) ObserveCheck(name string, passed bool, _ time.Duration) {
	r.checks = append(r.checks, recordedCheck{name: name, passed: passed})
}

func (r *fakeRecorder) ObserveVerdict(passed bool, _ time.Time) {
	r.verdicts = append(r.verdicts, passed)
}

func step(result check.Result, ran *[]string) check.Step {
	return check.Step{
		Name: result.Name,
		Run: func(context.Context) check.Result {
			*ran = append(*ran, result.Name)
			return result
		},
	}
}

func TestPipeline_AllPassRunsProber(t *testing.T) {
	var ran []string
	steps := []check.Step{
		step(check.Pass("a", "ok"), &ran),
		step(check.Warn("b", check.KindPathMismatch, "expected /x, found /y", ""), &ran),
		step(check.Pass("c", "ok"), &ran),
	}
	prober := &fakeProber{result: check.Pass("server-starts", "alive")}
	recorder := &fakeRecorder{}

	verdict := New(zerolog.Nop(), steps, prober, WithRecorder(recorder)).Run(context.Background())

	if !verdict.Passed || verdict.Err() != nil {
		t.Fatalf("expected pass, got %+v", verdict)
	}
	want := []check.Result{
		check.Pass("a", "ok"),
		check.Warn("b", check.KindPathMismatch, "expected /x, found /y", ""),
		check.Pass("c", "ok"),
		check.Pass("server-starts", "alive"),
	}
	if diff := cmp.Diff(want, verdict.Results); diff != "" {
		t.Fatalf("unexpected results (-want +got):\n%s", diff)
	}
	if prober.calls != 1 {
		t.Fatalf("prober called %d times", prober.calls)
	}
	if len(verdict.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", verdict.Warnings())
	}
	if len(recorder.checks) != 4 || len(recorder.verdicts) != 1 || !recorder.verdicts[0] {
		t.Fatalf("unexpected recorder state %+v", recorder)
	}
}

func TestPipeline_HaltsAtFirstHardFailure(t *testing.T) {
	var ran []string
	failure := check.Fail("b", check.KindMissingFile, "missing /etc/x", "create /etc/x")
	steps := []check.Step{
		step(check.Pass("a", "ok"), &ran),
		step(failure, &ran),
		step(check.Pass("c", "ok"), &ran),
	}
	prober := &fakeProber{result: check.Pass("server-starts", "alive")}

	verdict := New(zerolog.Nop(), steps, prober).Run(context.Background())

	if verdict.Passed {
		t.Fatalf("expected failure")
	}
	if diff := cmp.Diff([]string{"a", "b"}, ran); diff != "" {
		t.Fatalf("later steps ran (-want +got):\n%s", diff)
	}
	if len(verdict.Results) != 2 {
		t.Fatalf("later checks must not appear in the verdict: %+v", verdict.Results)
	}
	if prober.calls != 0 {
		t.Fatalf("prober must not run after a config failure")
	}

	var f *check.Failure
	if !errors.As(verdict.Err(), &f) || f.Kind != check.KindMissingFile || f.Check != "b" {
		t.Fatalf("unexpected verdict error %v", verdict.Err())
	}
}

func TestPipeline_ProberFailureFailsVerdict(t *testing.T) {
	var ran []string
	prober := &fakeProber{result: check.Fail("server-starts", check.KindProcessExitedEarly, "exited", "run it in the foreground")}

	verdict := New(zerolog.Nop(), []check.Step{step(check.Pass("a", "ok"), &ran)}, prober).Run(context.Background())

	if verdict.Passed || len(verdict.Results) != 2 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if verdict.Results[1].Kind != check.KindProcessExitedEarly {
		t.Fatalf("unexpected final kind %s", verdict.Results[1].Kind)
	}
}

func TestPipeline_CanceledContextStopsBeforeNextStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string
	steps := []check.Step{
		{Name: "a", Run: func(context.Context) check.Result {
			ran = append(ran, "a")
			cancel()
			return check.Pass("a", "ok")
		}},
		step(check.Pass("b", "ok"), &ran),
	}

	verdict := New(zerolog.Nop(), steps, nil).Run(ctx)

	if verdict.Passed || len(verdict.Results) != 2 || verdict.Results[1].Kind != check.KindAborted {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if len(ran) != 1 {
		t.Fatalf("step b should not run, ran %v", ran)
	}
}

func TestPipeline_ClockDrivesTiming(t *testing.T) {
	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	verdict := New(zerolog.Nop(), nil, &fakeProber{result: check.Pass("server-starts", "ok")}, WithClock(clock)).Run(context.Background())

	if !verdict.StartedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected start %s", verdict.StartedAt)
	}
	if verdict.Duration <= 0 {
		t.Fatalf("expected positive duration, got %s", verdict.Duration)
	}
}

func TestRender(t *testing.T) {
	verdict := Verdict{
		Passed: false,
		Results: []check.Result{
			check.Pass("host-config-exists", "found /h.json"),
			check.Warn("cwd-matches-install", check.KindPathMismatch, "cwd mismatch: expected /a, found /b", "If unintended, set cwd."),
			check.Fail("server-starts", check.KindProcessExitedEarly, "server exited within 1s (exit code 2)", "Run the server in the foreground to see its output:\n  pixi run labarchives-mcp"),
		},
	}

	var buf bytes.Buffer
	if err := Render(&buf, verdict); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"[OK]   host-config-exists: found /h.json",
		"[WARN] cwd-matches-install: cwd mismatch: expected /a, found /b",
		"[FAIL] server-starts: server exited within 1s (exit code 2)",
		"       (ProcessExitedEarly)",
		"         pixi run labarchives-mcp",
		"Verification FAILED at server-starts (ProcessExitedEarly).",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_PassSummaries(t *testing.T) {
	var clean, warned bytes.Buffer
	_ = Render(&clean, Verdict{Passed: true, Results: []check.Result{check.Pass("a", "ok")}})
	_ = Render(&warned, Verdict{Passed: true, Results: []check.Result{check.Warn("a", check.KindPathMismatch, "d", "")}})

	if !strings.Contains(clean.String(), "Verification passed.") {
		t.Fatalf("unexpected clean output %s", clean.String())
	}
	if !strings.Contains(warned.String(), "passed with 1 warning(s)") {
		t.Fatalf("unexpected warned output %s", warned.String())
	}
}

func TestRenderExample(t *testing.T) {
	var buf bytes.Buffer
	err := RenderExample(&buf, Example{
		ServerName: "labarchives",
		Command:    "/usr/local/bin/pixi",
		Args:       []string{"run", "--manifest-path", "/opt/mcp/pixi.toml", "labarchives-mcp"},
		Cwd:        "/opt/mcp",
		Env:        map[string]string{"LABARCHIVES_CONFIG_PATH": "/opt/mcp/conf/secrets.yml"},
	})
	if err != nil {
		t.Fatalf("render example: %v", err)
	}

	var decoded struct {
		MCPServers map[string]struct {
			Command string            `json:"command"`
			Args    []string          `json:"args"`
			Cwd     string            `json:"cwd"`
			Env     map[string]string `json:"env"`
		} `json:"mcpServers"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("example is not valid JSON: %v\n%s", err, buf.String())
	}
	server, ok := decoded.MCPServers["labarchives"]
	if !ok || server.Cwd != "/opt/mcp" || server.Command != "/usr/local/bin/pixi" || len(server.Args) != 4 {
		t.Fatalf("unexpected example %+v", decoded)
	}
	if server.Env["LABARCHIVES_CONFIG_PATH"] != "/opt/mcp/conf/secrets.yml" {
		t.Fatalf("unexpected env %v", server.Env)
	}
	if !strings.Contains(buf.String(), "\n  \"mcpServers\"") {
		t.Fatalf("expected two-space indentation:\n%s", buf.String())
	}
}
