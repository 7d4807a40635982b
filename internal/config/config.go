// Package config provides configuration management for toposync.
//
// The config file holds process settings only. Inventory, sync groups and
// configuration variables live in the database.
//
// Config file locations (priority order):
//  1. $TOPOSYNC_CONFIG
//  2. ./toposync.yaml
//  3. ~/.config/toposync/config.yaml
//  4. /etc/toposync/config.yaml
//
// TOPOSYNC_* environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Defaults used when the file leaves a value unset
const (
	DefaultDatabasePath      = "./toposync.db"
	DefaultHTTPAddr          = ":8080"
	DefaultPeeringDBURL      = "https://www.peeringdb.com"
	DefaultGroupingThreshold = 3
	DefaultLocalASNVariable  = "sync.bgp.localAsn"
	DefaultNATSSubject       = "toposync.events"
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides apply in both cases.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.applyEnv(os.LookupEnv); err != nil {
			return nil, "", err
		}
		return cfg, "", cfg.Validate()
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes YAML and fills in defaults, without environment overrides
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.PeeringDB.BaseURL == "" {
		c.PeeringDB.BaseURL = DefaultPeeringDBURL
	}
	if c.PeeringDB.Timeout == 0 {
		c.PeeringDB.Timeout = Duration(5 * time.Second)
	}
	if c.PeeringDB.RateLimit == 0 {
		c.PeeringDB.RateLimit = 2
	}
	if c.PeeringDB.Burst == 0 {
		c.PeeringDB.Burst = 1
	}
	if c.BGP.GroupingThreshold == nil {
		n := DefaultGroupingThreshold
		c.BGP.GroupingThreshold = &n
	}
	if c.BGP.LocalASNVariable == "" {
		c.BGP.LocalASNVariable = DefaultLocalASNVariable
	}
	if c.SNMP.Timeout == 0 {
		c.SNMP.Timeout = Duration(5 * time.Second)
	}
	if c.SNMP.MaxRepetitions == 0 {
		c.SNMP.MaxRepetitions = 10
	}
	if c.Poll.Concurrency == 0 {
		c.Poll.Concurrency = 1
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(30 * time.Second)
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: %q is not console or json", c.Log.Format))
	}
	if c.BGP.GroupingThreshold != nil && *c.BGP.GroupingThreshold < 0 {
		errs = append(errs, fmt.Errorf("bgp.grouping_threshold: must not be negative, got %d", *c.BGP.GroupingThreshold))
	}
	if c.Poll.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("poll.concurrency: must be at least 1, got %d", c.Poll.Concurrency))
	}
	if c.PeeringDB.RateLimit < 0 {
		errs = append(errs, errors.New("peeringdb.rate_limit: must not be negative"))
	}
	for i, s := range c.Schedules {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if s.Interval <= 0 {
			errs = append(errs, fmt.Errorf("schedule %s: interval must be positive", name))
		}
		if len(s.Groups) == 0 {
			errs = append(errs, fmt.Errorf("schedule %s: no groups", name))
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the log section
func (c *Config) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = zerolog.New(os.Stderr)
	if c.Log.Format == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s, HTTP: %s\n", c.Database.Path, c.HTTP.Addr)
	lookup := c.PeeringDB.BaseURL
	if c.PeeringDB.Disabled {
		lookup = "disabled"
	}
	fmt.Fprintf(&b, "AS lookup: %s, Grouping threshold: %d, Poll concurrency: %d\n",
		lookup, *c.BGP.GroupingThreshold, c.Poll.Concurrency)
	nats := c.NATS.URL
	if nats == "" {
		nats = "off"
	}
	fmt.Fprintf(&b, "NATS: %s, Schedules: %d", nats, len(c.Schedules))
	return b.String()
}
