package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Template describes how the server command line is assembled.
type Template struct {
	Executable  string
	Prefix      []string
	EnvFlag     string
	Environment string
	Suffix      []string
}

// Argv returns the full argument vector, executable first.
func (t Template) Argv() []string {
	argv := make([]string, 0, 1+len(t.Prefix)+2+len(t.Suffix))
	argv = append(argv, t.Executable)
	argv = append(argv, t.Prefix...)
	if t.EnvFlag != "" && t.Environment != "" {
		argv = append(argv, t.EnvFlag, t.Environment)
	}
	argv = append(argv, t.Suffix...)
	return argv
}

// String renders the command line for an operator to paste into a shell.
func (t Template) String() string {
	argv := t.Argv()
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'$\\`") {
			parts[i] = strconv.Quote(arg)
			continue
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}

// Spec is everything needed to start one child process.
type Spec struct {
	Template Template
	// Env holds overrides layered on top of the parent environment.
	Env    map[string]string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Handle tracks one spawned child. It is owned by whoever called Start and
// must end in Terminate or an observed exit.
type Handle struct {
	PID         int
	StartedAt   time.Time
	Command     []string
	Environment map[string]string

	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
	exitCode int
	once     sync.Once
}

// Start spawns the child in its own process group and reaps it in the background.
func Start(spec Spec) (*Handle, error) {
	argv := spec.Template.Argv()
	if argv[0] == "" {
		return nil, errors.New("executable must not be empty")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	h := &Handle{
		PID:         cmd.Process.Pid,
		StartedAt:   time.Now().UTC(),
		Command:     argv,
		Environment: copyEnv(spec.Env),
		cmd:         cmd,
		done:        make(chan struct{}),
		exitCode:    -1,
	}
	go h.reap()
	return h, nil
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.waitErr = err
	close(h.done)
}

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the child is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the child exits and returns its wait error.
func (h *Handle) Wait() error {
	<-h.done
	return h.waitErr
}

// ExitCode is the child's exit status, or -1 while it runs or when killed by a signal.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// Terminate asks the child's process group to stop, escalating to a kill if
// it is still running after timeout. A timeout of zero or less sends both
// signals without waiting. Signalling errors are swallowed since the group may
// already be gone. Safe to call more than once.
func (h *Handle) Terminate(timeout time.Duration) {
	h.once.Do(func() {
		if !h.Alive() {
			_ = killGroup(h.PID)
			return
		}
		_ = terminateGroup(h.PID)

		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case <-h.done:
			case <-timer.C:
			}
		}
		_ = killGroup(h.PID)
	})
}

func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+overrides[key])
	}
	return env
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for key, value := range env {
		out[key] = value
	}
	return out
}
