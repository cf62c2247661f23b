package process

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"
)

const (
	// CheckName identifies the health check in verdicts and metrics.
	CheckName = "server-starts"

	defaultTerminateTimeout = 0
)

// Readiness decides whether a freshly started child is ready.
type Readiness interface {
	AwaitReady(ctx context.Context, h *Handle, timeout time.Duration) bool
}

// GraceReadiness treats a child that survives the grace interval as ready.
// It returns early when the child exits or ctx is canceled.
type GraceReadiness struct{}

// AwaitReady implements Readiness.
func (GraceReadiness) AwaitReady(ctx context.Context, h *Handle, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.Done():
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	return h.Alive()
}

// HealthCheck spawns the server once, waits out the grace interval and
// terminates it again.
type HealthCheck struct {
	logger           zerolog.Logger
	spec             Spec
	grace            time.Duration
	terminateTimeout time.Duration
	readiness        Readiness
	start            func(Spec) (*Handle, error)
}

// Option customizes health check behavior.
type Option func(*HealthCheck)

// WithReadiness swaps the readiness strategy.
func WithReadiness(r Readiness) Option {
	return func(c *HealthCheck) {
		c.readiness = r
	}
}

// WithTerminateTimeout lets the server shut down gracefully for up to d
// before it is killed. By default the health check signals and moves on.
func WithTerminateTimeout(d time.Duration) Option {
	return func(c *HealthCheck) {
		c.terminateTimeout = d
	}
}

// WithStarter overrides how the child is spawned.
func WithStarter(start func(Spec) (*Handle, error)) Option {
	return func(c *HealthCheck) {
		c.start = start
	}
}

// NewHealthCheck constructs a HealthCheck for the given spec. Child output is
// discarded unless spec routes it elsewhere.
func NewHealthCheck(logger zerolog.Logger, spec Spec, grace time.Duration, opts ...Option) *HealthCheck {
	c := &HealthCheck{
		logger:           logger,
		spec:             spec,
		grace:            grace,
		terminateTimeout: defaultTerminateTimeout,
		readiness:        GraceReadiness{},
		start:            Start,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the check name.
func (c *HealthCheck) Name() string {
	return CheckName
}

// Probe runs the spawn, wait, poll and terminate sequence.
func (c *HealthCheck) Probe(ctx context.Context) check.Result {
	command := c.spec.Template.String()
	foreground := fmt.Sprintf("Run the server in the foreground to see its output:\n  %s", command)
	if c.spec.Dir != "" {
		foreground = fmt.Sprintf("Run the server in the foreground to see its output:\n  cd %q && %s", c.spec.Dir, command)
	}

	h, err := c.start(c.spec)
	if err != nil {
		c.logger.Error().Err(err).Str("command", command).Msg("server spawn failed")
		return check.Fail(CheckName, check.KindProcessSpawnFailed,
			fmt.Sprintf("could not start %q: %v", c.spec.Template.Executable, err),
			fmt.Sprintf("Confirm %q is installed and on PATH. %s", c.spec.Template.Executable, foreground))
	}
	defer h.Terminate(c.terminateTimeout)

	c.logger.Debug().
		Int("pid", h.PID).
		Strs("command", h.Command).
		Dur("grace", c.grace).
		Msg("server spawned")

	ready := c.readiness.AwaitReady(ctx, h, c.grace)
	if ctx.Err() != nil && !ready {
		return check.Fail(CheckName, check.KindAborted,
			fmt.Sprintf("probe of pid %d interrupted: %v", h.PID, ctx.Err()),
			"Re-run verify and let it finish.")
	}
	if !ready {
		code := h.ExitCode()
		c.logger.Warn().Int("pid", h.PID).Int("exit_code", code).Msg("server exited during grace interval")
		return check.Fail(CheckName, check.KindProcessExitedEarly,
			fmt.Sprintf("server exited within %s (exit code %d)", c.grace, code),
			foreground)
	}

	c.logger.Debug().Int("pid", h.PID).Msg("server alive after grace interval")
	return check.Pass(CheckName, fmt.Sprintf("server stayed up for %s (pid %d)", c.grace, h.PID))
}
