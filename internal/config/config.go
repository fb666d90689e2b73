// Package config handles Attune configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Observation feeds
	Feed FeedConfig `json:"feed"`

	// Google API credentials (only used when feed.provider is "google")
	Google GoogleConfig `json:"google"`

	// Detection engine cadence
	Engine EngineConfig `json:"engine"`

	// Capability switches
	Capabilities CapabilityConfig `json:"capabilities"`

	// Logging
	LogLevel string `json:"log_level"`
}

// ServerConfig for the HTTP API server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// FeedConfig selects and tunes the observation provider.
type FeedConfig struct {
	// Provider is "cli" (shell out to the gog tool) or "google" (direct API).
	Provider string `json:"provider"`

	// Binary is the gog executable, used when provider is "cli".
	Binary string `json:"binary"`

	// CalendarLookbackDays and CalendarLookaheadDays bound the event window.
	CalendarLookbackDays  int `json:"calendar_lookback_days"`
	CalendarLookaheadDays int `json:"calendar_lookahead_days"`

	// EmailMaxResults caps a single email observation pass.
	EmailMaxResults int `json:"email_max_results"`
}

// GoogleConfig for direct Google API access
type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenFile    string `json:"token_file"`
}

// EngineConfig for observation and suggestion cadence (minutes)
type EngineConfig struct {
	CalendarIntervalMins   int `json:"calendar_interval_mins"`
	EmailIntervalMins      int `json:"email_interval_mins"`
	SuggestionIntervalMins int `json:"suggestion_interval_mins"`
	StartupDelaySecs       int `json:"startup_delay_secs"`
}

// CapabilityConfig gates subsystems on and off
type CapabilityConfig struct {
	ActivityIntelligence bool `json:"activity_intelligence"`
	DebugMode            bool `json:"debug_mode"`
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".attune"),
		Server: ServerConfig{
			Port: 8737,
			Host: "localhost",
		},
		Feed: FeedConfig{
			Provider:              "cli",
			Binary:                "gog",
			CalendarLookbackDays:  7,
			CalendarLookaheadDays: 14,
			EmailMaxResults:       100,
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("ATTUNE_GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("ATTUNE_GOOGLE_CLIENT_SECRET"),
			TokenFile:    filepath.Join(home, ".attune", "google-token.json"),
		},
		Engine: EngineConfig{
			CalendarIntervalMins:   15,
			EmailIntervalMins:      30,
			SuggestionIntervalMins: 60,
			StartupDelaySecs:       10,
		},
		Capabilities: CapabilityConfig{
			ActivityIntelligence: true,
			DebugMode:            false,
		},
		LogLevel: "info",
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Override credentials from env if set
	if id := os.Getenv("ATTUNE_GOOGLE_CLIENT_ID"); id != "" {
		cfg.Google.ClientID = id
	}
	if secret := os.Getenv("ATTUNE_GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.Google.ClientSecret = secret
	}

	return cfg, nil
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	// Don't save credentials to file
	safeCfg := *c
	safeCfg.Google.ClientSecret = ""

	data, err := json.MarshalIndent(safeCfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DatabasePath returns the SQLite path under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "attune.db")
}
