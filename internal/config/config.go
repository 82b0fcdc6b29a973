// ABOUTME: Configuration loading and parsing for the concierge client
// ABOUTME: YAML with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	Relays   RelaysConfig   `yaml:"relays"`
	Identity IdentityConfig `yaml:"identity"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RelaysConfig holds relay URLs and subscription behavior.
type RelaysConfig struct {
	URLs []string `yaml:"urls"`

	// LiveFeed controls whether the client subscribes to the inbound
	// gift-wrap feed at all. Explicit by design: never sniffed from the
	// environment.
	LiveFeed bool `yaml:"live_feed"`

	// BacklogWindow bounds how far back historical backlog is requested.
	// Zero means no since filter (full history).
	BacklogWindow    time.Duration `yaml:"-"`
	BacklogWindowRaw string        `yaml:"backlog_window"`

	// DiscoveryTTL is the handler-discovery cache lifetime.
	DiscoveryTTL    time.Duration `yaml:"-"`
	DiscoveryTTLRaw string        `yaml:"discovery_ttl"`
}

// IdentityConfig holds the keypair file location.
type IdentityConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig holds the snapshot store location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values; unset variables expand to "".
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if len(c.Relays.URLs) == 0 {
		return fmt.Errorf("relays.urls must list at least one relay")
	}
	if c.Identity.Path == "" {
		return fmt.Errorf("identity.path is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Relays.BacklogWindowRaw != "" {
		cfg.Relays.BacklogWindow, err = time.ParseDuration(cfg.Relays.BacklogWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing backlog_window %q: %w", cfg.Relays.BacklogWindowRaw, err)
		}
	}

	if cfg.Relays.DiscoveryTTLRaw != "" {
		cfg.Relays.DiscoveryTTL, err = time.ParseDuration(cfg.Relays.DiscoveryTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing discovery_ttl %q: %w", cfg.Relays.DiscoveryTTLRaw, err)
		}
	}
	if cfg.Relays.DiscoveryTTL == 0 {
		cfg.Relays.DiscoveryTTL = 5 * time.Minute
	}

	return nil
}
