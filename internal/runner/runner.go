package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/metrics"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/process"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/sanitize"
)

const (
	defaultTerminateTimeout = 5 * time.Second
	defaultDrainTimeout     = 2 * time.Second

	// ExitInterrupted is returned when the operator stopped a server that
	// was killed by a signal.
	ExitInterrupted = 130
)

// Runner supervises one long-lived server and streams its sanitized output.
type Runner struct {
	logger           zerolog.Logger
	template         process.Template
	env              map[string]string
	dir              string
	stdin            io.Reader
	stdout           io.Writer
	session          *sanitize.Session
	metrics          *metrics.Metrics
	terminateTimeout time.Duration
	drainTimeout     time.Duration
	start            func(process.Spec) (*process.Handle, error)
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithStdout sets where kept output lines are shown live.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) {
		r.stdout = w
	}
}

// WithStdin sets the server's standard input.
func WithStdin(in io.Reader) Option {
	return func(r *Runner) {
		r.stdin = in
	}
}

// WithEnv layers overrides on top of the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(r *Runner) {
		r.env = env
	}
}

// WithDir sets the server's working directory.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithSession sets the log session that receives kept lines. Run closes it.
func WithSession(s *sanitize.Session) Option {
	return func(r *Runner) {
		r.session = s
	}
}

// WithMetrics records line counts and the exit code.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTerminateTimeout bounds how long an interrupted server may take to stop
// before its process group is killed.
func WithTerminateTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.terminateTimeout = d
	}
}

// WithStarter overrides how the server process is spawned.
func WithStarter(start func(process.Spec) (*process.Handle, error)) Option {
	return func(r *Runner) {
		r.start = start
	}
}

// New constructs a Runner for the given command template.
func New(logger zerolog.Logger, template process.Template, opts ...Option) *Runner {
	r := &Runner{
		logger:           logger,
		template:         template,
		stdin:            os.Stdin,
		stdout:           os.Stdout,
		terminateTimeout: defaultTerminateTimeout,
		drainTimeout:     defaultDrainTimeout,
		start:            process.Start,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type streamResult struct {
	stats sanitize.Stats
	err   error
}

// Run starts the server and blocks until it exits or ctx is canceled, in
// which case the server's process group is terminated. It returns the code
// the launcher should exit with.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if r.session == nil {
		return 1, errors.New("runner requires a log session")
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		_ = r.session.Close()
		return 1, wrapRuntime("create output pipe", err)
	}

	handle, err := r.start(process.Spec{
		Template: r.template,
		Env:      r.env,
		Dir:      r.dir,
		Stdin:    r.stdin,
		Stdout:   writer,
		Stderr:   writer,
	})
	// The child holds its own copy of the write end.
	_ = writer.Close()
	if err != nil {
		_ = reader.Close()
		var result *multierror.Error
		result = multierror.Append(result, wrapRuntime("start server", err))
		if closeErr := r.session.Close(); closeErr != nil {
			result = multierror.Append(result, wrapRuntime("close log", closeErr))
		}
		return 1, result.ErrorOrNil()
	}

	r.logger.Info().
		Int("pid", handle.PID).
		Str("command", r.template.String()).
		Str("session", r.session.ID).
		Msg("server started")

	streamed := make(chan streamResult, 1)
	go func() {
		stats, err := r.session.Stream(reader, r.stdout)
		if err != nil {
			// Keep the pipe empty so the server never blocks on a write.
			r.logger.Error().Err(err).Msg("server output no longer logged, discarding the rest")
			_, _ = io.Copy(io.Discard, reader)
		}
		streamed <- streamResult{stats: stats, err: err}
	}()

	interrupted := false
	select {
	case <-handle.Done():
	case <-ctx.Done():
		interrupted = true
		r.logger.Info().Int("pid", handle.PID).Msg("interrupt received, stopping server")
	}
	// Also clears any descendants left in the group after a normal exit.
	handle.Terminate(r.terminateTimeout)
	<-handle.Done()

	var stream streamResult
	select {
	case stream = <-streamed:
	case <-time.After(r.drainTimeout):
		r.logger.Warn().Msg("server output still open after exit, closing")
		_ = reader.Close()
		stream = <-streamed
	}
	_ = reader.Close()

	code := handle.ExitCode()
	switch {
	case code < 0 && interrupted:
		code = ExitInterrupted
	case code < 0:
		code = 1
	}

	r.metrics.AddLogLines(stream.stats.Kept, stream.stats.Dropped)
	r.metrics.SetExitCode(code)

	var result *multierror.Error
	var exitErr *exec.ExitError
	if err := handle.Wait(); err != nil && !errors.As(err, &exitErr) {
		result = multierror.Append(result, wrapRuntime("wait server", err))
	}
	if stream.err != nil {
		result = multierror.Append(result, wrapRuntime("stream server output", stream.err))
	}
	if err := r.session.Close(); err != nil {
		result = multierror.Append(result, wrapRuntime("close log", err))
	}

	r.logger.Info().
		Int("exit_code", code).
		Bool("interrupted", interrupted).
		Int("kept_lines", stream.stats.Kept).
		Int("dropped_lines", stream.stats.Dropped).
		Msg("server stopped")

	return code, result.ErrorOrNil()
}
