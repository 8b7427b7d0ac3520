// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the bridge configuration.
type Config struct {
	Agent     AgentConfig     `toml:"agent"`     // External coding-agent CLI
	Daemon    DaemonConfig    `toml:"daemon"`    // Optional long-running agent server
	Storage   StorageConfig   `toml:"storage"`   // Persistent state locations
	Access    AccessConfig    `toml:"access"`    // Actor allowlist
	Autonomy  AutonomyConfig  `toml:"autonomy"`  // Permission-denial classifier
	Timeouts  TimeoutsConfig  `toml:"timeouts"`  // Operation bounds
	Telemetry TelemetryConfig `toml:"telemetry"` // Tracing
}

// AgentConfig describes how to launch the agent CLI.
type AgentConfig struct {
	Path       string `toml:"path"`        // Binary name or path (default "opencode")
	DefaultCwd string `toml:"default_cwd"` // Working directory for fresh sessions
}

// DaemonConfig describes the optional agent daemon.
type DaemonConfig struct {
	URL    string `toml:"url"`    // Base URL probed for liveness
	Attach bool   `toml:"attach"` // Attach to the daemon when it is reachable
}

// StorageConfig contains persistent state settings.
type StorageConfig struct {
	StateFile string `toml:"state_file"` // Session/autonomy state (JSON)
	LogFile   string `toml:"log_file"`   // Optional log file (empty = stderr only)
}

// AccessConfig restricts who may drive the bridge.
type AccessConfig struct {
	AllowedActors []int64 `toml:"allowed_actors"` // Empty list denies everyone
}

// AutonomyConfig configures the permission-denial classifier.
type AutonomyConfig struct {
	PatternsFile string `toml:"patterns_file"` // Optional YAML file with extra denial phrases
}

// TimeoutsConfig contains timeout settings in seconds.
type TimeoutsConfig struct {
	Invocation int `toml:"invocation"` // Wall clock per agent call (default 300)
	Git        int `toml:"git"`        // Per git helper command (default 30)
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled bool `toml:"enabled"`
}

// New creates a new config with defaults.
func New() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agent: AgentConfig{
			Path:       "opencode",
			DefaultCwd: home,
		},
		Daemon: DaemonConfig{
			URL:    "http://127.0.0.1:8080",
			Attach: true,
		},
		Storage: StorageConfig{
			StateFile: "./sessions.json",
		},
		Timeouts: TimeoutsConfig{
			Invocation: 300,
			Git:        30,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file and applies env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault loads ocbridge.toml from the current directory, falling back to
// pure defaults (plus env overrides) when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "ocbridge.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := New()
		cfg.applyEnv()
		return cfg, nil
	}
	return LoadFile(path)
}

// applyEnv overlays environment variables onto the config. Env wins over
// file values so deployments can adjust a packaged config without editing it.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENCODE_PATH"); v != "" {
		c.Agent.Path = v
	}
	if v := os.Getenv("OPENCODE_DEFAULT_CWD"); v != "" {
		c.Agent.DefaultCwd = v
	}
	if v := os.Getenv("OPENCODE_SERVER_URL"); v != "" {
		c.Daemon.URL = v
	}
	if v := os.Getenv("OPENCODE_SESSIONS_FILE"); v != "" {
		c.Storage.StateFile = v
	}
	if v := os.Getenv("OPENCODE_LOG_FILE"); v != "" {
		c.Storage.LogFile = v
	}
	if v := os.Getenv("OCBRIDGE_ALLOWED_ACTORS"); v != "" {
		if actors, err := ParseActorList(v); err == nil {
			c.Access.AllowedActors = actors
		}
	}
}

// ParseActorList parses a comma-separated list of actor IDs.
func ParseActorList(raw string) ([]int64, error) {
	var actors []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid actor id %q: %w", part, err)
		}
		actors = append(actors, id)
	}
	return actors, nil
}

// Authorized reports whether the actor may use the bridge. An empty
// allowlist denies everyone (secure by default).
func (c *Config) Authorized(actorID int64) bool {
	for _, id := range c.Access.AllowedActors {
		if id == actorID {
			return true
		}
	}
	return false
}

// ExpandHome expands a leading ~ against the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[1:])
}
