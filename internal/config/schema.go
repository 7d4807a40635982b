package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version   int              `yaml:"version"`
	Log       LogConfig        `yaml:"log"`
	Database  DatabaseConfig   `yaml:"database"`
	HTTP      HTTPConfig       `yaml:"http"`
	PeeringDB PeeringDBConfig  `yaml:"peeringdb"`
	BGP       BGPConfig        `yaml:"bgp"`
	SNMP      SNMPConfig       `yaml:"snmp"`
	Poll      PollConfig       `yaml:"poll"`
	Probe     ProbeConfig      `yaml:"probe"`
	Secrets   SecretsConfig    `yaml:"secrets"`
	NATS      NATSConfig       `yaml:"nats"`
	Seed      SeedConfig       `yaml:"seed"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds the API server settings
type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// PeeringDBConfig configures AS name lookups
type PeeringDBConfig struct {
	Disabled  bool     `yaml:"disabled"`
	BaseURL   string   `yaml:"base_url"`
	Timeout   Duration `yaml:"timeout"`
	RateLimit float64  `yaml:"rate_limit"` // requests per second
	Burst     int      `yaml:"burst"`
}

// BGPConfig tunes the BGP reconciler
type BGPConfig struct {
	// GroupingThreshold is the largest number of peers of one foreign AS
	// reported without materializing them
	// reported without materializing them; 0 materializes every peer
	GroupingThreshold *int   `yaml:"grouping_threshold"`
	LocalASNVariable  string `yaml:"local_asn_variable"`
}

// SNMPConfig tunes the SNMP collector
type SNMPConfig struct {
	Timeout        Duration `yaml:"timeout"`
	MaxRepetitions uint32   `yaml:"max_repetitions"`
}

// PollConfig bounds parallel polling inside a group
type PollConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// ProbeConfig tunes agent reachability probes
type ProbeConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// SecretsConfig holds references to secrets (paths, not values)
type SecretsConfig struct {
	KeyFile string `yaml:"key_file,omitempty"`
}

// NATSConfig enables event forwarding when URL is set
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// SeedConfig points at a YAML inventory seed
type SeedConfig struct {
	Path  string `yaml:"path,omitempty"`
	Watch bool   `yaml:"watch"`
}

// ScheduleConfig runs sync groups periodically
type ScheduleConfig struct {
	Name     string   `yaml:"name"`
	Interval Duration `yaml:"interval"`
	Groups   []int64  `yaml:"groups"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
