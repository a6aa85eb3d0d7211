package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/taskpilot/pkg/role"
)

func TestBuiltinsValidate(t *testing.T) {
	builtins := Builtins()
	require.Contains(t, builtins, "build")
	require.Contains(t, builtins, "harden")
	require.Contains(t, builtins, "docs")

	for name, def := range builtins {
		assert.NoError(t, def.Validate(), name)
	}
}

func TestValidateUnknownRole(t *testing.T) {
	def := Definition{Name: "bad", Stages: []StageDef{{Role: "wizard"}}}
	assert.Error(t, def.Validate())
}

func TestValidateAlwaysRunRequiresReadOnlyRole(t *testing.T) {
	def := Definition{Name: "bad", Stages: []StageDef{
		{Role: role.Implementer.Name, AlwaysRun: true},
	}}
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestValidateEmpty(t *testing.T) {
	assert.Error(t, Definition{}.Validate())
	assert.Error(t, Definition{Name: "empty"}.Validate())
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
pipelines:
  - name: review
    description: plan then audit
    stages:
      - role: supervisor
      - role: auditor
  - name: paranoid
    stages:
      - role: implementer
      - role: strict-verifier
        always_run: true
`)

	defs, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "review", defs[0].Name)
	assert.Equal(t, "plan then audit", defs[0].Description)
	require.Len(t, defs[1].Stages, 2)
	assert.True(t, defs[1].Stages[1].AlwaysRun)
}

func TestLoadManifestDuplicateNames(t *testing.T) {
	path := writeManifest(t, `
pipelines:
  - name: twice
    stages:
      - role: supervisor
  - name: twice
    stages:
      - role: auditor
`)

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate pipeline name")
}

func TestLoadManifestInvalidStage(t *testing.T) {
	path := writeManifest(t, `
pipelines:
  - name: bad
    stages:
      - role: implementer
        always_run: true
`)

	_, err := LoadManifest(path)
	assert.Error(t, err)
}

func TestLoadManifestEmpty(t *testing.T) {
	path := writeManifest(t, "pipelines: []\n")
	_, err := LoadManifest(path)
	assert.Error(t, err)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
