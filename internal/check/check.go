package check

import (
	"context"
	"fmt"
)

// Status is the rendered outcome of a single check.
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusFailed  Status = "FAILED"
)

// Kind classifies why a check did not pass cleanly.
type Kind string

const (
	KindNone               Kind = ""
	KindMissingFile        Kind = "MissingFile"
	KindNotConfigured      Kind = "NotConfigured"
	KindMissingField       Kind = "MissingField"
	KindPathMismatch       Kind = "PathMismatch"
	KindProcessExitedEarly Kind = "ProcessExitedEarly"
	KindProcessSpawnFailed Kind = "ProcessSpawnFailed"
	// KindAborted marks a check cut short by cancellation (operator interrupt).
	KindAborted Kind = "Aborted"
)

// Result is the outcome of one check. A passed result may still carry a
// warning kind, in which case Detail describes the discrepancy.
type Result struct {
	Name        string `json:"name"`
	Passed      bool   `json:"passed"`
	Kind        Kind   `json:"kind,omitempty"`
	Detail      string `json:"detail"`
	Remediation string `json:"remediation,omitempty"`
}

// Pass returns a clean passing result.
func Pass(name, detail string) Result {
	return Result{Name: name, Passed: true, Detail: detail}
}

// Warn returns a passing result annotated with a non-fatal kind.
func Warn(name string, kind Kind, detail, remediation string) Result {
	return Result{Name: name, Passed: true, Kind: kind, Detail: detail, Remediation: remediation}
}

// Fail returns a hard failure.
func Fail(name string, kind Kind, detail, remediation string) Result {
	return Result{Name: name, Passed: false, Kind: kind, Detail: detail, Remediation: remediation}
}

// Warning reports whether the result passed with an annotation.
func (r Result) Warning() bool {
	return r.Passed && r.Kind != KindNone
}

// Hard reports whether the result halts a pipeline.
func (r Result) Hard() bool {
	return !r.Passed
}

// Status maps the result onto a display status.
func (r Result) Status() Status {
	switch {
	case !r.Passed:
		return StatusFailed
	case r.Warning():
		return StatusWarning
	default:
		return StatusOK
	}
}

// Err returns the result as a Failure, or nil when it passed.
func (r Result) Err() error {
	if r.Passed {
		return nil
	}
	return &Failure{Check: r.Name, Kind: r.Kind, Detail: r.Detail, Remediation: r.Remediation}
}

// Failure is a hard check failure surfaced to callers as an error.
type Failure struct {
	Check       string
	Kind        Kind
	Detail      string
	Remediation string
}

func (e *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Check, e.Kind, e.Detail)
}

// Step is one named, ordered unit of a verification run.
type Step struct {
	Name string
	Run  func(ctx context.Context) Result
}
