package tool

import "time"

// Call is one parsed tool instruction. Immutable once parsed: the executor
// reads it, never rewrites it.
type Call struct {
	Kind Kind           `json:"tool"`
	Args map[string]any `json:"args"`
	// Role is the name of the pipeline role that emitted the call.
	Role string `json:"role,omitempty"`
	// Seq is monotonic across the whole run, including stage boundaries,
	// giving a total order for audit replay.
	Seq int `json:"seq"`
}

// Result is the outcome of executing one Call, attached 1:1 to it.
type Result struct {
	OK bool `json:"ok"`
	// Output is the captured payload, truncated beyond the executor's cap.
	Output    string `json:"output,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     *Error `json:"error,omitempty"`
	// SideEffect reports whether a workspace or process mutation actually
	// occurred. It is never true while the run is in dryrun mode.
	SideEffect bool          `json:"side_effect"`
	Duration   time.Duration `json:"-"`
}

func (c *Call) stringArg(name string) string {
	value, _ := c.Args[name].(string)
	return value
}

func (c *Call) intArg(name string) (int, bool) {
	switch v := c.Args[name].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func failure(err *Error) Result {
	return Result{OK: false, Error: err}
}
