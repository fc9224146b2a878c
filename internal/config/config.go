// ABOUTME: Configuration loading and parsing for agentchat
// ABOUTME: Supports YAML or TOML files with .env loading, environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete agentchat configuration
type Config struct {
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Identity  IdentityConfig  `yaml:"identity" toml:"identity"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Warehouse WarehouseConfig `yaml:"warehouse" toml:"warehouse"`
}

// AgentConfig describes the remote agent API and the static shape of each run
type AgentConfig struct {
	BaseURL    string      `yaml:"base_url" toml:"base_url"`
	Token      string      `yaml:"token" toml:"token"`
	UserAgent  string      `yaml:"user_agent" toml:"user_agent"`
	Model      string      `yaml:"model" toml:"model"`
	ThreadPath string      `yaml:"thread_path" toml:"thread_path"`
	RunPath    string      `yaml:"run_path" toml:"run_path"`
	Tools      ToolsConfig `yaml:"tools" toml:"tools"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// ToolsConfig binds the analyst and search tools attached to every run.
// Leaving a resource empty drops that tool from the request.
type ToolsConfig struct {
	AnalystName       string `yaml:"analyst_name" toml:"analyst_name"`
	SemanticModelFile string `yaml:"semantic_model_file" toml:"semantic_model_file"`
	SearchName        string `yaml:"search_name" toml:"search_name"`
	SearchService     string `yaml:"search_service" toml:"search_service"`
	MaxResults        int    `yaml:"max_results" toml:"max_results"`
}

// DatabaseConfig selects the store backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite (default), sqlite3, postgres
	Path   string `yaml:"path" toml:"path"`
	URL    string `yaml:"url" toml:"url"`
}

// IdentityConfig selects how the current user is determined
type IdentityConfig struct {
	Source string `yaml:"source" toml:"source"` // os (default), static, database
	User   string `yaml:"user" toml:"user"`
}

// ServerConfig holds the web UI listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// WarehouseConfig enables running generated SQL. Queries run only when URL is
// set, inside a read-only transaction, and at most MaxRows rows are shown.
type WarehouseConfig struct {
	URL     string `yaml:"url" toml:"url"`
	MaxRows int    `yaml:"max_rows" toml:"max_rows"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// Enabled reports whether generated SQL should be run.
func (w WarehouseConfig) Enabled() bool {
	return w.URL != ""
}

// Defaults for optional fields.
const (
	DefaultDatabasePath = "agentchat.db"
	DefaultHTTPAddr     = "127.0.0.1:8080"
	DefaultHostname     = "agentchat"
	DefaultMetricsPath  = "/metrics"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultTimeout      = 60 * time.Second
	DefaultMaxResults   = 10
	DefaultMaxRows      = 100
	DefaultQueryTimeout = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file in the working directory is loaded first; variables already set win.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = DefaultTimeout
	}
	if c.Agent.Tools.SearchService != "" && c.Agent.Tools.MaxResults == 0 {
		c.Agent.Tools.MaxResults = DefaultMaxResults
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" && c.Database.Driver != "postgres" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Identity.Source == "" {
		c.Identity.Source = "os"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = DefaultHostname
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Warehouse.Enabled() {
		if c.Warehouse.MaxRows == 0 {
			c.Warehouse.MaxRows = DefaultMaxRows
		}
		if c.Warehouse.Timeout == 0 {
			c.Warehouse.Timeout = DefaultQueryTimeout
		}
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Agent.BaseURL == "" {
		return fmt.Errorf("agent.base_url is required")
	}
	u, err := url.Parse(c.Agent.BaseURL)
	if err != nil {
		return fmt.Errorf("agent.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("agent.base_url must use http or https scheme")
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("agent.timeout must not be negative")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver %s", c.Database.Driver)
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite, sqlite3 or postgres, got %q", c.Database.Driver)
	}

	switch c.Identity.Source {
	case "os":
	case "static":
		if strings.TrimSpace(c.Identity.User) == "" {
			return fmt.Errorf("identity.user is required when identity.source is static")
		}
	case "database":
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("identity.source database requires database.driver postgres")
		}
	default:
		return fmt.Errorf("identity.source must be os, static or database, got %q", c.Identity.Source)
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Warehouse.Enabled() {
		u, err := url.Parse(c.Warehouse.URL)
		if err != nil {
			return fmt.Errorf("warehouse.url is not a valid URL: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("warehouse.url must use postgres or postgresql scheme")
		}
		if c.Warehouse.MaxRows < 0 {
			return fmt.Errorf("warehouse.max_rows must not be negative")
		}
		if c.Warehouse.Timeout < 0 {
			return fmt.Errorf("warehouse.timeout must not be negative")
		}
	}

	return nil
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Agent.TimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Agent.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agent.timeout %q: %w", cfg.Agent.TimeoutRaw, err)
		}
		cfg.Agent.Timeout = d
	}
	if cfg.Warehouse.TimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Warehouse.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing warehouse.timeout %q: %w", cfg.Warehouse.TimeoutRaw, err)
		}
		cfg.Warehouse.Timeout = d
	}
	return nil
}

// ResolvePath picks the config file location.
// Priority: explicit flag > AGENTCHAT_CONFIG env var > XDG_CONFIG_HOME/agentchat/config.yaml > ~/.config/agentchat/config.yaml
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("AGENTCHAT_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "agentchat", "config.yaml")
}
