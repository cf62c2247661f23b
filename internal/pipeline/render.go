package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"
)

var statusLabels = map[check.Status]string{
	check.StatusOK:      "[OK]  ",
	check.StatusWarning: "[WARN]",
	check.StatusFailed:  "[FAIL]",
}

const continuation = "       "

// Render writes the operator checklist for v.
func Render(w io.Writer, v Verdict) error {
	var b strings.Builder
	for _, r := range v.Results {
		fmt.Fprintf(&b, "%s %s: %s\n", statusLabels[r.Status()], r.Name, r.Detail)
		if r.Kind != check.KindNone {
			fmt.Fprintf(&b, "%s(%s)\n", continuation, r.Kind)
		}
		if r.Remediation != "" && r.Status() != check.StatusOK {
			for _, line := range strings.Split(r.Remediation, "\n") {
				fmt.Fprintf(&b, "%s%s\n", continuation, line)
			}
		}
	}

	b.WriteString("\n")
	switch {
	case !v.Passed && len(v.Results) == 0:
		b.WriteString("Verification FAILED.\n")
	case !v.Passed:
		failed := v.Results[len(v.Results)-1]
		fmt.Fprintf(&b, "Verification FAILED at %s (%s).\n", failed.Name, failed.Kind)
	case len(v.Warnings()) > 0:
		fmt.Fprintf(&b, "Verification passed with %d warning(s).\n", len(v.Warnings()))
	default:
		b.WriteString("Verification passed.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Example is the host configuration block the tool expects, built from its
// own resolved paths.
type Example struct {
	ServerName string
	Command    string
	Args       []string
	Cwd        string
	Env        map[string]string
}

type exampleServer struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env,omitempty"`
}

type exampleDocument struct {
	MCPServers map[string]exampleServer `json:"mcpServers"`
}

// RenderExample writes e as a JSON host configuration block.
func RenderExample(w io.Writer, e Example) error {
	doc := exampleDocument{
		MCPServers: map[string]exampleServer{
			e.ServerName: {
				Command: e.Command,
				Args:    append([]string{}, e.Args...),
				Cwd:     e.Cwd,
				Env:     e.Env,
			},
		},
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
