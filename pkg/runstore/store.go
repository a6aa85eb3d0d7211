// Package runstore persists one record per run for later inspection.
// Records are written whole via temp-file-and-rename so a process killed
// mid-write never leaves an unparseable store.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Task is the immutable input of a run, captured at CLI invocation.
type Task struct {
	Text     string `json:"text"`
	Pipeline string `json:"pipeline"`
	Mode     string `json:"mode"`
	MaxSteps int    `json:"max_steps,omitempty"`
}

// CallSummary records one tool invocation for audit replay.
type CallSummary struct {
	Seq        int    `json:"seq"`
	Kind       string `json:"kind"`
	OK         bool   `json:"ok"`
	SideEffect bool   `json:"side_effect"`
}

// StageSummary is the persisted summary of one stage. The full transcript
// is discarded with the stage; only this summary and the final answer
// text survive.
type StageSummary struct {
	Role         string        `json:"role"`
	Status       string        `json:"status"`
	Calls        []CallSummary `json:"calls,omitempty"`
	FilesTouched []string      `json:"files_touched,omitempty"`
	Answer       string        `json:"answer,omitempty"`
	Error        string        `json:"error,omitempty"`
	DurationMS   int64         `json:"duration_ms"`
}

// RunRecord is the persisted unit: created at run start, stage list
// append-only while running, immutable once finished.
type RunRecord struct {
	ID         string         `json:"id"`
	Task       Task           `json:"task"`
	Stages     []StageSummary `json:"stages,omitempty"`
	Status     string         `json:"status"`
	Result     string         `json:"result,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Store is a directory of run records, one JSON file per run.
type Store struct {
	mu   sync.Mutex
	dir  string
	open map[string]*RunRecord
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("run store directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run store: %w", err)
	}
	return &Store{dir: dir, open: make(map[string]*RunRecord)}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Begin creates and persists the open record for a new run.
func (s *Store) Begin(task Task) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &RunRecord{
		ID:        uuid.NewString(),
		Task:      task,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if _, exists := s.open[record.ID]; exists {
		return nil, fmt.Errorf("run %s already open", record.ID)
	}

	if err := s.write(record); err != nil {
		return nil, err
	}
	s.open[record.ID] = record
	return record, nil
}

// RecordStage appends a stage summary to an open run. The stage list is
// append-only; existing entries are never rewritten.
func (s *Store) RecordStage(id string, summary StageSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.open[id]
	if !ok {
		return fmt.Errorf("run %s is not open", id)
	}
	record.Stages = append(record.Stages, summary)
	return s.write(record)
}

// Finish finalizes a run. It is idempotent: finishing an already-final
// record performs no further write and returns the finalized record.
func (s *Store) Finish(id, status, result string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.open[id]
	if !ok {
		existing, err := s.read(id)
		if err != nil {
			return nil, fmt.Errorf("run %s is not open: %w", id, err)
		}
		if existing.FinishedAt == nil {
			return nil, fmt.Errorf("run %s is not open and not finalized", id)
		}
		return existing, nil
	}

	now := time.Now().UTC()
	record.Status = status
	record.Result = result
	record.FinishedAt = &now
	if err := s.write(record); err != nil {
		return nil, err
	}
	delete(s.open, id)
	return record, nil
}

// Get reads one run record by id.
func (s *Store) Get(id string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// List returns all persisted runs, newest first.
func (s *Store) List() ([]*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var records []*RunRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// A half-written temp file never carries the .json suffix, so
			// an unreadable record here is worth surfacing.
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) read(id string) (*RunRecord, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) write(record *RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, record.ID+".tmp-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path(record.ID)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
