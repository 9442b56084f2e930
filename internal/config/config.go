package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all rung configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend service the assistant runs on
	Backend BackendConfig `yaml:"backend"`

	// Conversation timing
	Conversation ConversationConfig `yaml:"conversation"`

	// Where offered artifacts are written
	Downloads DownloadsConfig `yaml:"downloads"`

	// Transcript history
	History HistoryConfig `yaml:"history"`

	// Request statistics
	Usage UsageConfig `yaml:"usage"`

	// Terminal UI
	UX UXConfig `yaml:"ux"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the backend HTTP client.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// ConversationConfig configures status indicator and save control timing.
type ConversationConfig struct {
	ThinkingDelay string `yaml:"thinking_delay"` // loading -> thinking phase switch
	SaveRevert    string `yaml:"save_revert"`    // save control auto-revert to idle
}

// DownloadsConfig configures the artifact saver.
type DownloadsConfig struct {
	Dir string `yaml:"dir"`
}

// HistoryConfig configures the SQLite transcript store.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// UsageConfig configures the request statistics file.
type UsageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// UXConfig configures the terminal UI.
type UXConfig struct {
	Theme          string `yaml:"theme"` // light, dark
	RenderMarkdown bool   `yaml:"render_markdown"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "rung",
		Version: "0.3.0",

		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
			Timeout: "300s",
		},

		Conversation: ConversationConfig{
			ThinkingDelay: "1.5s",
			SaveRevert:    "3s",
		},

		Downloads: DownloadsConfig{
			Dir: "downloads",
		},

		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(".rung", "history.db"),
		},

		Usage: UsageConfig{
			Enabled: true,
			Path:    filepath.Join(".rung", "usage.json"),
		},

		UX: UXConfig{
			Theme:          "dark",
			RenderMarkdown: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    filepath.Join(".rung", "logs"),
		},
	}
}

// DefaultConfigPath returns the workspace-relative config location.
func DefaultConfigPath() string {
	return filepath.Join(".rung", "config.yaml")
}

// Load loads configuration from a YAML file.
// A .env file in the working directory is loaded first so its variables
// take part in the environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults if config file doesn't exist
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("RUNG_BACKEND_URL"); u != "" {
		c.Backend.BaseURL = u
	}
	if dir := os.Getenv("RUNG_DOWNLOAD_DIR"); dir != "" {
		c.Downloads.Dir = dir
	}
	if path := os.Getenv("RUNG_HISTORY_DB"); path != "" {
		c.History.DatabasePath = path
	}
	if v := os.Getenv("RUNG_DEBUG"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			c.Logging.DebugMode = true
		case "0", "false", "no", "off":
			c.Logging.DebugMode = false
		}
	}
}

// GetBackendTimeout returns the backend request timeout as a duration.
func (c *Config) GetBackendTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// GetThinkingDelay returns the delay before the status indicator switches phase.
func (c *Config) GetThinkingDelay() time.Duration {
	d, err := time.ParseDuration(c.Conversation.ThinkingDelay)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

// GetSaveRevert returns how long a save control shows its outcome.
func (c *Config) GetSaveRevert() time.Duration {
	d, err := time.ParseDuration(c.Conversation.SaveRevert)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// ValidThemes lists the supported UI themes.
var ValidThemes = []string{"light", "dark"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base_url not configured (set RUNG_BACKEND_URL)")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend base_url: %q", c.Backend.BaseURL)
	}

	validTheme := false
	for _, t := range ValidThemes {
		if c.UX.Theme == t {
			validTheme = true
			break
		}
	}
	if !validTheme {
		return fmt.Errorf("invalid theme: %s (valid: %v)", c.UX.Theme, ValidThemes)
	}

	if c.History.Enabled && c.History.DatabasePath == "" {
		return fmt.Errorf("history enabled but database_path is empty")
	}
	if c.Usage.Enabled && c.Usage.Path == "" {
		return fmt.Errorf("usage enabled but path is empty")
	}

	return nil
}
