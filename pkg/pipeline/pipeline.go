// Package pipeline defines named pipelines as data and the controller
// that drives them. A pipeline is a static ordered list of roles with
// per-stage flags; no dynamic branching on model content exists, which
// keeps the reachable states enumerable.
package pipeline

import (
	"fmt"
	"os"

	"github.com/zen-systems/taskpilot/pkg/role"
	"gopkg.in/yaml.v3"
)

// StageDef declares one stage of a pipeline.
type StageDef struct {
	Role string `yaml:"role"`
	// AlwaysRun stages execute even after the run has failed, for
	// forensic verification. Declared explicitly per stage, never
	// inferred from the pipeline name.
	AlwaysRun bool `yaml:"always_run,omitempty"`
}

// Definition is a named, ordered list of stages.
type Definition struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Stages      []StageDef `yaml:"stages"`
}

// Builtins returns the pipeline definitions that ship with the tool.
func Builtins() map[string]Definition {
	definitions := []Definition{
		{
			Name:        "build",
			Description: "plan, implement, verify, then strict-verify",
			Stages: []StageDef{
				{Role: role.Supervisor.Name},
				{Role: role.Implementer.Name},
				{Role: role.Verifier.Name},
				{Role: role.StrictVerifier.Name, AlwaysRun: true},
			},
		},
		{
			Name:        "harden",
			Description: "plan, implement, audit, then strict-verify",
			Stages: []StageDef{
				{Role: role.Supervisor.Name},
				{Role: role.Implementer.Name},
				{Role: role.Auditor.Name},
				{Role: role.StrictVerifier.Name, AlwaysRun: true},
			},
		},
		{
			Name:        "docs",
			Description: "plan, document, verify",
			Stages: []StageDef{
				{Role: role.Supervisor.Name},
				{Role: role.Docs.Name},
				{Role: role.Verifier.Name},
			},
		},
	}

	byName := make(map[string]Definition, len(definitions))
	for _, definition := range definitions {
		byName[definition.Name] = definition
	}
	return byName
}

// Validate checks a pipeline definition for errors.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("pipeline %s must define at least one stage", d.Name)
	}

	for i, stage := range d.Stages {
		ro, err := role.ByName(stage.Role)
		if err != nil {
			return fmt.Errorf("pipeline %s stage %d: %w", d.Name, i+1, err)
		}
		if stage.AlwaysRun && !ro.ReadOnly {
			return fmt.Errorf("pipeline %s stage %d: always-run stage %s must use a read-only role", d.Name, i+1, stage.Role)
		}
	}
	return nil
}

type manifest struct {
	Pipelines []Definition `yaml:"pipelines"`
}

// LoadManifest reads additional pipeline definitions from a YAML file.
func LoadManifest(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Pipelines) == 0 {
		return nil, fmt.Errorf("manifest %s defines no pipelines", path)
	}

	seen := make(map[string]struct{})
	for _, definition := range m.Pipelines {
		if err := definition.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[definition.Name]; dup {
			return nil, fmt.Errorf("duplicate pipeline name: %s", definition.Name)
		}
		seen[definition.Name] = struct{}{}
	}
	return m.Pipelines, nil
}
