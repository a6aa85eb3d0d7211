// Package role defines the closed set of pipeline roles and the stage
// runner that drives one role to its final answer.
package role

import "fmt"

// Role is one named participant in a pipeline. Roles are values, not
// behaviors: the runner dispatches every role through the same turn loop,
// and the strict verifier substitutes a fixed probe list for the backend.
type Role struct {
	Name string
	// ReadOnly roles never mutate the workspace regardless of the run's
	// safety mode.
	ReadOnly bool
	// Strict marks the deterministic verifier that never calls a backend.
	Strict       bool
	Instructions string
}

var (
	Supervisor = Role{Name: "supervisor", ReadOnly: true, Instructions: supervisorPrompt}
	Implementer = Role{Name: "implementer", Instructions: implementerPrompt}
	Verifier    = Role{Name: "verifier", Instructions: verifierPrompt}
	Auditor     = Role{Name: "auditor", ReadOnly: true, Instructions: auditorPrompt}
	Docs        = Role{Name: "docs", Instructions: docsPrompt}
	StrictVerifier = Role{Name: "strict-verifier", ReadOnly: true, Strict: true}
)

var roles = map[string]Role{
	Supervisor.Name:     Supervisor,
	Implementer.Name:    Implementer,
	Verifier.Name:       Verifier,
	Auditor.Name:        Auditor,
	Docs.Name:           Docs,
	StrictVerifier.Name: StrictVerifier,
}

// ByName resolves a role name to its variant.
func ByName(name string) (Role, error) {
	r, ok := roles[name]
	if !ok {
		return Role{}, fmt.Errorf("unknown role: %s", name)
	}
	return r, nil
}

// Names returns the role names in pipeline-definition order.
func Names() []string {
	return []string{
		Supervisor.Name,
		Implementer.Name,
		Verifier.Name,
		Auditor.Name,
		Docs.Name,
		StrictVerifier.Name,
	}
}
