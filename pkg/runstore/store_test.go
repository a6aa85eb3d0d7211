package runstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	return store
}

func TestBeginPersistsRunningRecord(t *testing.T) {
	store := newTestStore(t)

	record, err := store.Begin(Task{Text: "do it", Pipeline: "build", Mode: "dryrun"})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, StatusRunning, record.Status)

	loaded, err := store.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, "do it", loaded.Task.Text)
	assert.Equal(t, StatusRunning, loaded.Status)
	assert.Nil(t, loaded.FinishedAt)
}

func TestRecordStageAppends(t *testing.T) {
	store := newTestStore(t)
	record, err := store.Begin(Task{Text: "task"})
	require.NoError(t, err)

	require.NoError(t, store.RecordStage(record.ID, StageSummary{Role: "supervisor", Status: StatusCompleted}))
	require.NoError(t, store.RecordStage(record.ID, StageSummary{Role: "implementer", Status: StatusFailed, Error: "boom"}))

	loaded, err := store.Get(record.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Stages, 2)
	assert.Equal(t, "supervisor", loaded.Stages[0].Role)
	assert.Equal(t, "boom", loaded.Stages[1].Error)
}

func TestRecordStageUnknownRun(t *testing.T) {
	store := newTestStore(t)
	err := store.RecordStage("no-such-run", StageSummary{Role: "supervisor"})
	assert.Error(t, err)
}

func TestFinishFinalizes(t *testing.T) {
	store := newTestStore(t)
	record, err := store.Begin(Task{Text: "task"})
	require.NoError(t, err)

	finished, err := store.Finish(record.ID, StatusCompleted, "all good")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, finished.Status)
	assert.Equal(t, "all good", finished.Result)
	require.NotNil(t, finished.FinishedAt)

	// A finished run no longer accepts stages.
	assert.Error(t, store.RecordStage(record.ID, StageSummary{Role: "verifier"}))
}

func TestFinishIdempotent(t *testing.T) {
	store := newTestStore(t)
	record, err := store.Begin(Task{Text: "task"})
	require.NoError(t, err)

	first, err := store.Finish(record.ID, StatusFailed, "broke")
	require.NoError(t, err)

	// Repeated finishes return the already-final record unchanged.
	for i := 0; i < 3; i++ {
		again, err := store.Finish(record.ID, StatusCompleted, "rewritten")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, again.Status)
		assert.Equal(t, "broke", again.Result)
		assert.Equal(t, first.FinishedAt.Unix(), again.FinishedAt.Unix())
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Finish("no-such-run", StatusCompleted, "")
	assert.Error(t, err)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		record, err := store.Begin(Task{Text: "task"})
		require.NoError(t, err)
		_, err = store.Finish(record.ID, StatusCompleted, "")
		require.NoError(t, err)
		ids = append(ids, record.ID)
		time.Sleep(5 * time.Millisecond)
	}

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ids[2], records[0].ID)
	assert.Equal(t, ids[0], records[2].ID)
	for i := 0; i < len(records)-1; i++ {
		assert.False(t, records[i].StartedAt.Before(records[i+1].StartedAt))
	}
}

func TestListIgnoresForeignFiles(t *testing.T) {
	store := newTestStore(t)
	record, err := store.Begin(Task{Text: "task"})
	require.NoError(t, err)
	_, err = store.Finish(record.ID, StatusCompleted, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "README"), []byte("not a record"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), record.ID+".tmp-123"), []byte("partial"), 0644))

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "runs")
	_, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewStore("")
	assert.Error(t, err)
}
