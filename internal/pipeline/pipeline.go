package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"
)

// Prober is the final, process-level check of a pipeline.
type Prober interface {
	Name() string
	Probe(ctx context.Context) check.Result
}

// Recorder receives per-check and per-run observations.
type Recorder interface {
	ObserveCheck(name string, passed bool, duration time.Duration)
	ObserveVerdict(passed bool, at time.Time)
}

// Verdict is the outcome of one pipeline run. Results holds only the checks
// that actually ran, in order.
type Verdict struct {
	Results   []check.Result `json:"results"`
	Passed    bool           `json:"overall_passed"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Err returns the first hard failure as a *check.Failure, or nil.
func (v Verdict) Err() error {
	for _, r := range v.Results {
		if r.Hard() {
			return r.Err()
		}
	}
	return nil
}

// Warnings returns the passed results that carry an annotation.
func (v Verdict) Warnings() []check.Result {
	var out []check.Result
	for _, r := range v.Results {
		if r.Warning() {
			out = append(out, r)
		}
	}
	return out
}

// Pipeline runs configuration steps and then one prober, halting at the
// first hard failure.
type Pipeline struct {
	logger   zerolog.Logger
	steps    []check.Step
	prober   Prober
	recorder Recorder
	now      func() time.Time
}

// Option customizes pipeline behavior.
type Option func(*Pipeline)

// WithRecorder reports observations to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New constructs a Pipeline. prober may be nil.
func New(logger zerolog.Logger, steps []check.Step, prober Prober, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: logger,
		steps:  steps,
		prober: prober,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline once.
func (p *Pipeline) Run(ctx context.Context) Verdict {
	started := p.now().UTC()
	verdict := Verdict{StartedAt: started, Passed: true}

	runs := make([]check.Step, 0, len(p.steps)+1)
	runs = append(runs, p.steps...)
	if p.prober != nil {
		runs = append(runs, check.Step{Name: p.prober.Name(), Run: p.prober.Probe})
	}

	for _, step := range runs {
		if err := ctx.Err(); err != nil {
			verdict.Results = append(verdict.Results, check.Fail(step.Name, check.KindAborted,
				"verification interrupted: "+err.Error(), "Re-run verify and let it finish."))
			verdict.Passed = false
			break
		}

		stepStart := p.now()
		result := step.Run(ctx)
		if result.Name == "" {
			result.Name = step.Name
		}
		elapsed := p.now().Sub(stepStart)
		verdict.Results = append(verdict.Results, result)
		p.observeCheck(result, elapsed)

		event := p.logger.Debug()
		switch result.Status() {
		case check.StatusWarning:
			event = p.logger.Warn()
		case check.StatusFailed:
			event = p.logger.Error()
		}
		event.Str("check", result.Name).
			Str("status", string(result.Status())).
			Str("kind", string(result.Kind)).
			Dur("elapsed", elapsed).
			Msg("check finished")

		if result.Hard() {
			verdict.Passed = false
			break
		}
	}

	verdict.Duration = p.now().Sub(started)
	if p.recorder != nil {
		p.recorder.ObserveVerdict(verdict.Passed, started)
	}
	return verdict
}

func (p *Pipeline) observeCheck(result check.Result, elapsed time.Duration) {
	if p.recorder == nil {
		return
	}
	p.recorder.ObserveCheck(result.Name, result.Passed, elapsed)
}
