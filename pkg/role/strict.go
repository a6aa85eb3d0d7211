package role

import (
	"context"
	"fmt"
	"strings"

	"github.com/zen-systems/taskpilot/pkg/protocol"
	"github.com/zen-systems/taskpilot/pkg/tool"
)

// Probe is one deterministic check in the strict verifier's checklist,
// expressed as a read-only tool call through the regular executor.
type Probe struct {
	Name string
	Kind tool.Kind
	Args map[string]any
	// ExpectNoMatches makes a grep probe pass only when nothing matched.
	ExpectNoMatches bool
}

// ProbeOutcome is one row of the strict verification report.
type ProbeOutcome struct {
	Name   string
	Passed bool
	Detail string
}

// Report is the PASS/FAIL table produced by a strict verification.
type Report struct {
	Outcomes []ProbeOutcome
}

// Passed reports whether every probe passed.
func (r *Report) Passed() bool {
	for _, outcome := range r.Outcomes {
		if !outcome.Passed {
			return false
		}
	}
	return true
}

// DefaultChecklist returns the fixed probes run on every strict
// verification, independent of any prior stage.
func DefaultChecklist() []Probe {
	return []Probe{
		{
			Name: "workspace-readable",
			Kind: tool.KindFSRead,
			Args: map[string]any{"path": "."},
		},
		{
			Name:            "no-conflict-markers",
			Kind:            tool.KindGrep,
			Args:            map[string]any{"pattern": "^(<<<<<<< |>>>>>>> )"},
			ExpectNoMatches: true,
		},
	}
}

// checklist extends the default probes with per-file existence checks for
// everything the prior stage reported touching, then any extra probes.
func checklist(prior *protocol.FinalAnswer, extra []Probe) []Probe {
	probes := DefaultChecklist()
	if prior != nil {
		for _, file := range prior.Files {
			probes = append(probes, Probe{
				Name: "file-exists:" + file,
				Kind: tool.KindFSRead,
				Args: map[string]any{"path": file},
			})
		}
	}
	return append(probes, extra...)
}

// RunStrictStage runs the strict verifier: no backend, a fixed ordered
// probe list, identical behavior on every invocation. Probes are read-only
// tool calls, so the stage works in any safety mode and with no backend
// reachable.
func RunStrictStage(ctx context.Context, exec *tool.Executor, seq *tool.Sequence, prior *protocol.FinalAnswer, extra []Probe) (*Transcript, *Report) {
	transcript := &Transcript{Role: StrictVerifier.Name}
	report := &Report{}

	for _, probe := range checklist(prior, extra) {
		call := tool.Call{
			Kind: probe.Kind,
			Args: probe.Args,
			Role: StrictVerifier.Name,
			Seq:  seq.Next(),
		}
		result := exec.Execute(ctx, call, true)
		transcript.Steps = append(transcript.Steps, Step{Call: call, Result: result})

		passed := result.OK
		detail := ""
		if result.Error != nil {
			detail = result.Error.Message
		}
		if probe.ExpectNoMatches && passed {
			if result.Output != "no matches" {
				passed = false
				detail = "unexpected matches"
			}
		}
		report.Outcomes = append(report.Outcomes, ProbeOutcome{
			Name:   probe.Name,
			Passed: passed,
			Detail: detail,
		})
	}

	passedCount := 0
	var failures []string
	for _, outcome := range report.Outcomes {
		if outcome.Passed {
			passedCount++
		} else {
			failures = append(failures, outcome.Name)
		}
	}

	status := "completed"
	text := fmt.Sprintf("strict verification: %d/%d probes passed", passedCount, len(report.Outcomes))
	if len(failures) > 0 {
		status = "failed"
		text += "; failed: " + strings.Join(failures, ", ")
	}
	transcript.Answer = &protocol.FinalAnswer{Text: text, Status: status}

	return transcript, report
}
