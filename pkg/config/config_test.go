package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a scratch directory and clears every setting the
// loader reads, so tests see only what they set themselves.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY",
		"TASKPILOT_BACKEND", "TASKPILOT_MODEL", "TASKPILOT_RUN_DIR",
		"TASKPILOT_BACKEND_TIMEOUT_SECONDS", "TASKPILOT_SHELL_TIMEOUT_SECONDS",
		"TASKPILOT_MAX_STEPS", "TASKPILOT_MALFORMED_LIMIT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "script", cfg.Backend)
	assert.Equal(t, 120*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShellTimeout)
	assert.Zero(t, cfg.MaxSteps)
	assert.Empty(t, cfg.Extra)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("TASKPILOT_MODEL", "claude-sonnet-4-20250514")
	t.Setenv("TASKPILOT_MAX_STEPS", "10")
	t.Setenv("TASKPILOT_SHELL_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Backend)
	assert.Equal(t, "sk-test", cfg.AnthropicAPIKey)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.ShellTimeout)
}

func TestLoadFileConfig(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")
	configDir := filepath.Join(home, ".taskpilot")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	yaml := `
api_keys:
  openai: sk-from-file
backend: openai
model: gpt-4o
timeouts:
  shell_seconds: 7
max_steps: 12
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Backend)
	assert.Equal(t, "sk-from-file", cfg.OpenAIAPIKey)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 7*time.Second, cfg.ShellTimeout)
	assert.Equal(t, 12, cfg.MaxSteps)
}

func TestEnvBeatsFile(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")
	configDir := filepath.Join(home, ".taskpilot")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("backend: openai\nmodel: gpt-4o\n"), 0644))

	t.Setenv("TASKPILOT_BACKEND", "google")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "google", cfg.Backend)
	assert.Equal(t, "gpt-4o", cfg.Model)
}

func TestLoadExtraSettings(t *testing.T) {
	isolate(t)
	t.Setenv("TASKPILOT_EXT_PROBE_PORT", "8080")
	t.Setenv("TASKPILOT_EXT_CACHE_PATH", "/tmp/cache")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Extra["PROBE_PORT"])
	assert.Equal(t, "/tmp/cache", cfg.Extra["CACHE_PATH"])
}

func TestHasBackend(t *testing.T) {
	cfg := &Config{OpenAIAPIKey: "sk"}

	assert.True(t, cfg.HasBackend("openai"))
	assert.True(t, cfg.HasBackend("script"))
	assert.False(t, cfg.HasBackend("anthropic"))
	assert.False(t, cfg.HasBackend("google"))
	assert.False(t, cfg.HasBackend("unknown"))
}

func TestPickDefaultBackendOrder(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"anthropic first", &Config{AnthropicAPIKey: "a", OpenAIAPIKey: "o"}, "anthropic"},
		{"openai next", &Config{OpenAIAPIKey: "o", GoogleAPIKey: "g"}, "openai"},
		{"google next", &Config{GoogleAPIKey: "g"}, "google"},
		{"script last", &Config{}, "script"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickDefaultBackend(tt.cfg))
		})
	}
}
