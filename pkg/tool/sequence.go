package tool

import "sync"

// Sequence hands out strictly increasing sequence numbers for one run.
// The controller owns a single Sequence and shares it across stages so
// the run has one total order of tool calls for audit replay.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// Next returns the next sequence number, starting at 1.
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

// Count returns how many numbers have been handed out.
func (s *Sequence) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
