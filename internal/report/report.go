package report

import (
	"time"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/pipeline"
)

// Report is the persisted record of the last verification run.
type Report struct {
	HostConfigPath string            `json:"host_config_path"`
	HostConfigHash string            `json:"host_config_sha256,omitempty"`
	InstallDir     string            `json:"install_dir"`
	Command        string            `json:"command"`
	Fields         map[string]string `json:"extracted_fields,omitempty"`
	Passed         bool              `json:"overall_passed"`
	StartedAt      time.Time         `json:"started_at"`
	DurationMillis int64             `json:"duration_ms"`
	Results        []check.Result    `json:"results"`
}

// FromVerdict builds a Report from a pipeline verdict.
func FromVerdict(v pipeline.Verdict) Report {
	results := make([]check.Result, len(v.Results))
	copy(results, v.Results)
	return Report{
		Passed:         v.Passed,
		StartedAt:      v.StartedAt,
		DurationMillis: v.Duration.Milliseconds(),
		Results:        results,
	}
}

