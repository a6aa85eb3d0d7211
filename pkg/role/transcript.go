package role

import (
	"encoding/json"
	"fmt"

	"github.com/zen-systems/taskpilot/pkg/protocol"
	"github.com/zen-systems/taskpilot/pkg/tool"
)

// Step is one executed tool call and its result. Every call has exactly
// one result before the transcript advances.
type Step struct {
	Call   tool.Call   `json:"call"`
	Result tool.Result `json:"result"`
}

// Transcript is the ordered record of one role's execution within a run.
// It is owned by the stage; only the final answer propagates forward.
type Transcript struct {
	Role      string                `json:"role"`
	Steps     []Step                `json:"steps"`
	Malformed int                   `json:"malformed_lines"`
	Answer    *protocol.FinalAnswer `json:"answer,omitempty"`
}

// FilesTouched returns the relative paths of files the stage actually
// mutated, in first-touch order.
func (t *Transcript) FilesTouched() []string {
	seen := make(map[string]bool)
	var files []string
	for _, step := range t.Steps {
		if !step.Result.SideEffect {
			continue
		}
		switch step.Call.Kind {
		case tool.KindFSWrite, tool.KindPatch:
			if path, ok := step.Call.Args["path"].(string); ok && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}
	return files
}

// observation renders a tool result as the user-turn feedback the role
// sees on its next turn.
func observation(step Step) string {
	payload := map[string]any{
		"seq":    step.Call.Seq,
		"tool":   step.Call.Kind,
		"ok":     step.Result.OK,
		"output": step.Result.Output,
	}
	if step.Result.Error != nil {
		payload["error"] = step.Result.Error
	}
	if step.Result.Truncated {
		payload["truncated"] = true
	}
	data, err := json.Marshal(map[string]any{"tool_result": payload})
	if err != nil {
		return fmt.Sprintf(`{"tool_result": {"seq": %d, "ok": false, "error": "unencodable result"}}`, step.Call.Seq)
	}
	return string(data)
}
