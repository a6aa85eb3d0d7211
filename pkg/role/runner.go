package role

import (
	"context"
	"fmt"
	"strings"

	"github.com/zen-systems/taskpilot/pkg/backend"
	"github.com/zen-systems/taskpilot/pkg/protocol"
	"github.com/zen-systems/taskpilot/pkg/tool"
)

// DefaultMaxSteps bounds tool calls per stage when no budget is configured.
const DefaultMaxSteps = 25

// BudgetError reports that a stage hit its step budget without producing
// a final answer.
type BudgetError struct {
	Limit int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("step budget exceeded: %d tool calls without a final answer", e.Limit)
}

// Runner drives one role's stage: backend turn, parse, execute, repeat,
// until a final answer or a stage-level failure.
type Runner struct {
	Backend backend.Backend
	Retry   backend.RetryConfig
	Exec    *tool.Executor
	// Seq is shared across stages so sequence numbers stay monotonic for
	// the whole run.
	Seq   *tool.Sequence
	Model string
	// MaxSteps bounds executed tool calls per stage; 0 selects the default.
	MaxSteps int
	// MalformedLimit bounds consecutive malformed lines; 0 selects the
	// protocol default.
	MalformedLimit int
	Logf           func(format string, args ...any)
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// RunStage executes one role against the task. prior is the previous
// stage's final answer, nil for the first stage. On success the returned
// transcript carries a non-nil Answer; on failure the transcript holds
// whatever executed before the error.
func (r *Runner) RunStage(ctx context.Context, ro Role, task string, prior *protocol.FinalAnswer) (*Transcript, error) {
	if ro.Strict {
		transcript, _ := RunStrictStage(ctx, r.Exec, r.Seq, prior, nil)
		return transcript, nil
	}

	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	transcript := &Transcript{Role: ro.Name}
	decoder := protocol.NewDecoder(r.MalformedLimit)

	var sb strings.Builder
	sb.WriteString("Task:\n")
	sb.WriteString(task)
	if prior != nil && prior.Text != "" {
		sb.WriteString("\n\nContext from the previous stage:\n")
		sb.WriteString(prior.Text)
	}
	turns := []backend.Turn{{Role: "user", Content: sb.String()}}

	for {
		// Cancellation is checked between turns; an in-flight tool call
		// always finishes first.
		if err := ctx.Err(); err != nil {
			return transcript, err
		}

		output, err := backend.Complete(ctx, r.Backend, backend.Request{
			System: ro.Instructions,
			Turns:  turns,
			Model:  r.Model,
		}, r.Retry)
		if err != nil {
			return transcript, err
		}
		turns = append(turns, backend.Turn{Role: "assistant", Content: output})

		var feedback []string
		sawLine := false
		for _, line := range strings.Split(output, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			sawLine = true

			event, decodeErr := decoder.Decode(line)
			switch event.Type {
			case protocol.EventFinalAnswer:
				transcript.Answer = event.Answer
				return transcript, nil

			case protocol.EventToolCall:
				if len(transcript.Steps) >= maxSteps {
					return transcript, &BudgetError{Limit: maxSteps}
				}
				call := tool.Call{
					Kind: tool.Kind(event.Call.Kind),
					Args: event.Call.Args,
					Role: ro.Name,
					Seq:  r.Seq.Next(),
				}
				result := r.Exec.Execute(ctx, call, ro.ReadOnly)
				step := Step{Call: call, Result: result}
				transcript.Steps = append(transcript.Steps, step)
				r.logf("[%s] #%d %s ok=%t", ro.Name, call.Seq, call.Kind, result.OK)
				feedback = append(feedback, observation(step))

			case protocol.EventMalformed:
				transcript.Malformed++
				feedback = append(feedback, protocol.CorrectionObservation)
				if decodeErr != nil {
					return transcript, decodeErr
				}
			}
		}

		if !sawLine {
			// An entirely blank turn still counts against the malformed
			// budget, otherwise a silent backend would spin forever.
			transcript.Malformed++
			if _, decodeErr := decoder.Decode(""); decodeErr != nil {
				return transcript, decodeErr
			}
			feedback = append(feedback, protocol.CorrectionObservation)
		}

		turns = append(turns, backend.Turn{Role: "user", Content: strings.Join(feedback, "\n")})
	}
}
