package report

import "github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"

// Transition is a check whose status differs from the previous report.
type Transition struct {
	Check    string
	Previous check.Status
	Current  check.Status
	Kind     check.Kind
	Detail   string
}

// DetectTransitions compares the previous report with the current one. On a
// first run, or for a check the previous run never reached, only non-OK
// results are reported. Checks that did not run this time are ignored.
func DetectTransitions(prev *Report, current Report) []Transition {
	prevStatus := map[string]check.Status{}
	if prev != nil {
		for _, r := range prev.Results {
			prevStatus[r.Name] = r.Status()
		}
	}

	transitions := make([]Transition, 0)
	for _, r := range current.Results {
		status := r.Status()
		before, hadPrev := prevStatus[r.Name]
		if hadPrev && before == status {
			continue
		}
		if !hadPrev && status == check.StatusOK {
			continue
		}
		transitions = append(transitions, Transition{
			Check:    r.Name,
			Previous: before,
			Current:  status,
			Kind:     r.Kind,
			Detail:   r.Detail,
		})
	}
	return transitions
}
