// Package config loads taskpilot settings from a config file and the
// environment. Environment variables take precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string

	// Backend selects the reasoning provider: anthropic, openai, google
	// or script.
	Backend string
	Model   string

	// RunDir is where run records are persisted.
	RunDir string

	BackendTimeout time.Duration
	ShellTimeout   time.Duration
	MaxSteps       int
	MalformedLimit int

	// Extra carries environment-provided port/path tables as opaque
	// strings. The core never parses or validates them.
	Extra map[string]string

	ConfigDir string
}

// FileConfig represents the structure of ~/.taskpilot/config.yaml.
type FileConfig struct {
	APIKeys struct {
		Anthropic string `yaml:"anthropic"`
		OpenAI    string `yaml:"openai"`
		Google    string `yaml:"google"`
	} `yaml:"api_keys"`
	Backend  string `yaml:"backend"`
	Model    string `yaml:"model"`
	RunDir   string `yaml:"run_dir"`
	Timeouts struct {
		BackendSeconds int `yaml:"backend_seconds"`
		ShellSeconds   int `yaml:"shell_seconds"`
	} `yaml:"timeouts"`
	MaxSteps       int `yaml:"max_steps"`
	MalformedLimit int `yaml:"malformed_limit"`
}

const extraEnvPrefix = "TASKPILOT_EXT_"

// Load reads configuration from .env, the config file, and environment
// variables, in increasing precedence.
func Load() (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		Backend:         getEnvOrDefault("TASKPILOT_BACKEND", fileConfig.Backend),
		Model:           getEnvOrDefault("TASKPILOT_MODEL", fileConfig.Model),
		RunDir:          getEnvOrDefault("TASKPILOT_RUN_DIR", fileConfig.RunDir),
		BackendTimeout:  durationSetting("TASKPILOT_BACKEND_TIMEOUT_SECONDS", fileConfig.Timeouts.BackendSeconds, 120*time.Second),
		ShellTimeout:    durationSetting("TASKPILOT_SHELL_TIMEOUT_SECONDS", fileConfig.Timeouts.ShellSeconds, 30*time.Second),
		MaxSteps:        intSetting("TASKPILOT_MAX_STEPS", fileConfig.MaxSteps),
		MalformedLimit:  intSetting("TASKPILOT_MALFORMED_LIMIT", fileConfig.MalformedLimit),
		Extra:           loadExtra(),
		ConfigDir:       configDir,
	}

	if cfg.Backend == "" {
		cfg.Backend = pickDefaultBackend(cfg)
	}
	return cfg, nil
}

// HasBackend returns true if the API key for the given backend is
// configured. The script backend needs no key.
func (c *Config) HasBackend(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "script":
		return true
	default:
		return false
	}
}

func pickDefaultBackend(c *Config) string {
	for _, name := range []string{"anthropic", "openai", "google"} {
		if c.HasBackend(name) {
			return name
		}
	}
	return "script"
}

func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, cfg)
	return cfg
}

func loadExtra() map[string]string {
	extra := make(map[string]string)
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, extraEnvPrefix) {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		extra[strings.TrimPrefix(key, extraEnvPrefix)] = value
	}
	return extra
}

func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func intSetting(envVar string, fileValue int) int {
	if raw := os.Getenv(envVar); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fileValue
}

func durationSetting(envVar string, fileSeconds int, fallback time.Duration) time.Duration {
	if seconds := intSetting(envVar, fileSeconds); seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".taskpilot")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
