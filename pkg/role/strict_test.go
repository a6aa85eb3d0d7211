package role

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/taskpilot/pkg/protocol"
	"github.com/zen-systems/taskpilot/pkg/safety"
	"github.com/zen-systems/taskpilot/pkg/tool"
)

func newStrictExecutor(t *testing.T) (*tool.Executor, string) {
	t.Helper()
	root := t.TempDir()
	executor, err := tool.NewExecutor(tool.Config{Root: root, Gate: safety.NewGate(safety.DryRun)})
	require.NoError(t, err)
	return executor, root
}

func TestStrictStageAllProbesPass(t *testing.T) {
	executor, root := newStrictExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))

	prior := &protocol.FinalAnswer{Text: "done", Files: []string{"main.go"}}
	transcript, report := RunStrictStage(context.Background(), executor, &tool.Sequence{}, prior, nil)

	assert.True(t, report.Passed())
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "workspace-readable", report.Outcomes[0].Name)
	assert.Equal(t, "no-conflict-markers", report.Outcomes[1].Name)
	assert.Equal(t, "file-exists:main.go", report.Outcomes[2].Name)

	require.NotNil(t, transcript.Answer)
	assert.Equal(t, "completed", transcript.Answer.Status)
	assert.Contains(t, transcript.Answer.Text, "3/3 probes passed")
}

func TestStrictStageFailsOnConflictMarkers(t *testing.T) {
	executor, root := newStrictExecutor(t)
	conflict := "<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> feature\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "merge.txt"), []byte(conflict), 0644))

	transcript, report := RunStrictStage(context.Background(), executor, &tool.Sequence{}, nil, nil)

	assert.False(t, report.Passed())
	require.NotNil(t, transcript.Answer)
	assert.Equal(t, "failed", transcript.Answer.Status)
	assert.Contains(t, transcript.Answer.Text, "no-conflict-markers")
}

func TestStrictStageFailsOnMissingFile(t *testing.T) {
	executor, _ := newStrictExecutor(t)

	prior := &protocol.FinalAnswer{Files: []string{"missing.txt"}}
	transcript, report := RunStrictStage(context.Background(), executor, &tool.Sequence{}, prior, nil)

	assert.False(t, report.Passed())
	assert.Equal(t, "failed", transcript.Answer.Status)
	assert.Contains(t, transcript.Answer.Text, "file-exists:missing.txt")
}

func TestStrictStageDeterministic(t *testing.T) {
	executor, root := newStrictExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a\n"), 0644))

	_, first := RunStrictStage(context.Background(), executor, &tool.Sequence{}, nil, nil)
	_, second := RunStrictStage(context.Background(), executor, &tool.Sequence{}, nil, nil)

	assert.Equal(t, first.Outcomes, second.Outcomes)
}

func TestStrictStageExtraProbes(t *testing.T) {
	executor, root := newStrictExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "todo.txt"), []byte("TODO: fix\n"), 0644))

	extra := []Probe{{
		Name:            "no-todos",
		Kind:            tool.KindGrep,
		Args:            map[string]any{"pattern": "TODO"},
		ExpectNoMatches: true,
	}}
	_, report := RunStrictStage(context.Background(), executor, &tool.Sequence{}, nil, extra)

	assert.False(t, report.Passed())
	last := report.Outcomes[len(report.Outcomes)-1]
	assert.Equal(t, "no-todos", last.Name)
	assert.False(t, last.Passed)
	assert.Equal(t, "unexpected matches", last.Detail)
}
