package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zen-systems/taskpilot/pkg/protocol"
	"github.com/zen-systems/taskpilot/pkg/role"
	"github.com/zen-systems/taskpilot/pkg/runstore"
)

// State is the controller's position in its state machine.
type State int

const (
	Idle State = iota
	StageRunning
	StageSucceeded
	StageFailed
	RunCompleted
	RunFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case StageRunning:
		return "stage-running"
	case StageSucceeded:
		return "stage-succeeded"
	case StageFailed:
		return "stage-failed"
	case RunCompleted:
		return "run-completed"
	case RunFailed:
		return "run-failed"
	default:
		return "unknown"
	}
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID       string
	Status      string
	FailedStage string
	// Answer is the last final answer observed.
	Answer *protocol.FinalAnswer
	// Err is the error that failed the run, nil on success.
	Err error
}

// Controller drives one pipeline definition to completion, persisting
// stage summaries as it goes. Stages run strictly sequentially: each
// stage's final answer is required input to the next.
type Controller struct {
	Definition Definition
	Runner     *role.Runner
	Store      *runstore.Store
	Logf       func(format string, args ...any)

	state State
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// Run executes the pipeline for one task. The returned error covers setup
// problems only; stage failures are reported through Outcome so the store
// record and the outcome always agree.
func (c *Controller) Run(ctx context.Context, task runstore.Task) (*Outcome, error) {
	if err := c.Definition.Validate(); err != nil {
		return nil, err
	}
	if c.Runner == nil || c.Store == nil {
		return nil, fmt.Errorf("controller requires a runner and a store")
	}

	record, err := c.Store.Begin(task)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{RunID: record.ID, Status: runstore.StatusCompleted}
	var prior *protocol.FinalAnswer
	runFailed := false
	cancelled := false

	for _, stageDef := range c.Definition.Stages {
		ro, err := role.ByName(stageDef.Role)
		if err != nil {
			return nil, err
		}

		if (runFailed || cancelled) && !stageDef.AlwaysRun {
			c.logf("skipping stage %s", ro.Name)
			if err := c.Store.RecordStage(record.ID, runstore.StageSummary{
				Role:   ro.Name,
				Status: "skipped",
			}); err != nil {
				return nil, err
			}
			continue
		}

		c.state = StageRunning
		c.logf("stage %s starting", ro.Name)
		start := time.Now()

		budgetRunner := *c.Runner
		if task.MaxSteps > 0 {
			budgetRunner.MaxSteps = task.MaxSteps
		}
		transcript, stageErr := budgetRunner.RunStage(ctx, ro, task.Text, prior)

		summary := summarize(ro.Name, transcript, stageErr, time.Since(start))
		if err := c.Store.RecordStage(record.ID, summary); err != nil {
			return nil, err
		}

		if stageErr == nil && transcript.Answer != nil && transcript.Answer.Status != "failed" {
			c.state = StageSucceeded
			prior = transcript.Answer
			outcome.Answer = transcript.Answer
			c.logf("stage %s succeeded", ro.Name)
			continue
		}

		c.state = StageFailed
		if transcript != nil && transcript.Answer != nil {
			outcome.Answer = transcript.Answer
		}
		if errors.Is(stageErr, context.Canceled) {
			cancelled = true
			c.logf("stage %s cancelled", ro.Name)
		} else {
			c.logf("stage %s failed: %v", ro.Name, stageErr)
		}
		if !runFailed {
			outcome.FailedStage = ro.Name
			outcome.Err = stageErr
			if outcome.Err == nil {
				outcome.Err = fmt.Errorf("stage %s reported failure", ro.Name)
			}
		}
		runFailed = true
	}

	switch {
	case cancelled:
		c.state = RunFailed
		outcome.Status = runstore.StatusCancelled
	case runFailed:
		c.state = RunFailed
		outcome.Status = runstore.StatusFailed
	default:
		c.state = RunCompleted
	}

	result := ""
	if outcome.Answer != nil {
		result = outcome.Answer.Text
	}
	if _, err := c.Store.Finish(record.ID, outcome.Status, result); err != nil {
		return nil, err
	}
	return outcome, nil
}

func summarize(roleName string, transcript *role.Transcript, stageErr error, duration time.Duration) runstore.StageSummary {
	summary := runstore.StageSummary{
		Role:       roleName,
		Status:     runstore.StatusCompleted,
		DurationMS: duration.Milliseconds(),
	}
	if transcript != nil {
		for _, step := range transcript.Steps {
			summary.Calls = append(summary.Calls, runstore.CallSummary{
				Seq:        step.Call.Seq,
				Kind:       string(step.Call.Kind),
				OK:         step.Result.OK,
				SideEffect: step.Result.SideEffect,
			})
		}
		summary.FilesTouched = transcript.FilesTouched()
		if transcript.Answer != nil {
			summary.Answer = transcript.Answer.Text
			if transcript.Answer.Status == "failed" {
				summary.Status = runstore.StatusFailed
			}
		}
	}
	if stageErr != nil {
		summary.Error = stageErr.Error()
		summary.Status = runstore.StatusFailed
		if errors.Is(stageErr, context.Canceled) {
			summary.Status = runstore.StatusCancelled
		}
	}
	return summary
}
