package safety

// Mode controls whether mutating tools act on the workspace or simulate.
type Mode int

const (
	// DryRun simulates mutating tools without touching the workspace.
	// It is the zero value so an unconfigured run can never mutate.
	DryRun Mode = iota
	// Apply performs mutations for real. Only an explicit flag at run
	// start may select it; nothing downstream can escalate to it.
	Apply
)

// String returns the mode name used in records and CLI output.
func (m Mode) String() string {
	if m == Apply {
		return "apply"
	}
	return "dryrun"
}

// ParseMode maps a requested mode string to a Mode. Anything that is not
// exactly "apply" is DryRun.
func ParseMode(value string) Mode {
	if value == "apply" {
		return Apply
	}
	return DryRun
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate is the single choke point consulted before any mutating tool acts.
// It is a pure decision over the run's mode and the invoking role's
// read-only flag; it holds no state that model output could reach.
type Gate struct {
	mode Mode
}

// NewGate creates a gate for one run. The mode is fixed for the gate's
// lifetime; concurrent runs each carry their own gate.
func NewGate(mode Mode) *Gate {
	return &Gate{mode: mode}
}

// Mode returns the gate's effective mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// Authorize decides whether a tool invocation may mutate the workspace.
// Non-mutating kinds are always allowed. A read-only role is denied
// mutation regardless of the global mode.
func (g *Gate) Authorize(toolKind string, mutating bool, roleReadOnly bool) Decision {
	if !mutating {
		return Decision{Allowed: true}
	}
	if roleReadOnly {
		return Decision{Allowed: false, Reason: "role is read-only"}
	}
	if g.mode != Apply {
		return Decision{Allowed: false, Reason: "mode is dryrun"}
	}
	return Decision{Allowed: true}
}
