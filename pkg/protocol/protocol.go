// Package protocol decodes the line-oriented instruction stream emitted by
// a reasoning backend. Each line is exactly one of: a tool call, a final
// answer, or malformed. The stream is untrusted; nothing here may panic on
// arbitrary input.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultMalformedLimit is the number of consecutive malformed lines
// tolerated before the stage fails with a protocol violation.
const DefaultMalformedLimit = 5

// CorrectionObservation is fed back to the role after a malformed line.
const CorrectionObservation = "last output was not valid; re-emit as a single JSON instruction per line, with no surrounding text"

// EventType classifies one parsed line.
type EventType int

const (
	EventMalformed EventType = iota
	EventToolCall
	EventFinalAnswer
)

// CallRequest is a decoded tool instruction, not yet validated against the
// registry or stamped with a sequence number.
type CallRequest struct {
	Kind string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// FinalAnswer is a role's terminal output. Once produced the stage can
// emit no further tool calls.
type FinalAnswer struct {
	Text   string   `json:"final"`
	Status string   `json:"status,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// Event is the decoding of one raw line.
type Event struct {
	Type   EventType
	Call   *CallRequest
	Answer *FinalAnswer
	// Raw preserves the original line for transcripts and audits.
	Raw string
	// Reason explains why a line is malformed.
	Reason string
}

// ParseLine decodes one line of model output. A line is a tool call iff it
// is a single bare JSON object carrying a "tool" key, and a final answer
// iff it carries a "final" key. JSON embedded inside prose or code fences
// is rejected as malformed rather than extracted: an agent must not be
// able to hide actions inside explanatory text.
func ParseLine(line string) Event {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return malformed(line, "empty line")
	}
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return malformed(line, "line is not a bare JSON object")
	}

	decoder := json.NewDecoder(strings.NewReader(trimmed))
	var raw map[string]json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		return malformed(line, fmt.Sprintf("invalid JSON: %v", err))
	}
	if decoder.More() {
		return malformed(line, "trailing content after JSON object")
	}

	_, hasTool := raw["tool"]
	_, hasFinal := raw["final"]

	switch {
	case hasTool && hasFinal:
		return malformed(line, `object contains both "tool" and "final"`)
	case hasTool:
		var call CallRequest
		if err := json.Unmarshal([]byte(trimmed), &call); err != nil {
			return malformed(line, fmt.Sprintf("invalid tool call: %v", err))
		}
		if call.Kind == "" {
			return malformed(line, "tool kind must be a non-empty string")
		}
		if call.Args == nil {
			call.Args = map[string]any{}
		}
		return Event{Type: EventToolCall, Call: &call, Raw: line}
	case hasFinal:
		var answer FinalAnswer
		if err := json.Unmarshal([]byte(trimmed), &answer); err != nil {
			return malformed(line, fmt.Sprintf("invalid final answer: %v", err))
		}
		return Event{Type: EventFinalAnswer, Answer: &answer, Raw: line}
	default:
		return malformed(line, "object has no recognized instruction key")
	}
}

func malformed(line, reason string) Event {
	return Event{Type: EventMalformed, Raw: line, Reason: reason}
}

// ViolationError reports that a stage exceeded its malformed-line budget.
type ViolationError struct {
	Consecutive int
	LastReason  string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("protocol violation: %d consecutive malformed lines (last: %s)", e.Consecutive, e.LastReason)
}

// Decoder parses lines while tracking consecutive malformed output against
// a limit. One Decoder serves one stage.
type Decoder struct {
	limit       int
	consecutive int
}

// NewDecoder creates a decoder; limit <= 0 selects DefaultMalformedLimit.
func NewDecoder(limit int) *Decoder {
	if limit <= 0 {
		limit = DefaultMalformedLimit
	}
	return &Decoder{limit: limit}
}

// Decode parses one line. It returns a *ViolationError once the
// consecutive-malformed threshold is exceeded; any valid line resets the
// counter.
func (d *Decoder) Decode(line string) (Event, error) {
	event := ParseLine(line)
	if event.Type == EventMalformed {
		d.consecutive++
		if d.consecutive >= d.limit {
			return event, &ViolationError{Consecutive: d.consecutive, LastReason: event.Reason}
		}
		return event, nil
	}
	d.consecutive = 0
	return event, nil
}
