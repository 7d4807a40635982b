package config

import (
	"fmt"
	"strconv"
)

// Environment variables that override file settings
const (
	EnvLogLevel          = "TOPOSYNC_LOG_LEVEL"
	EnvLogFormat         = "TOPOSYNC_LOG_FORMAT"
	EnvDatabasePath      = "TOPOSYNC_DB_PATH"
	EnvHTTPAddr          = "TOPOSYNC_HTTP_ADDR"
	EnvPeeringDBURL      = "TOPOSYNC_PEERINGDB_URL"
	EnvPeeringDBDisabled = "TOPOSYNC_PEERINGDB_DISABLED"
	EnvGroupingThreshold = "TOPOSYNC_BGP_GROUPING_THRESHOLD"
	EnvPollConcurrency   = "TOPOSYNC_POLL_CONCURRENCY"
	EnvSecretsKeyFile    = "TOPOSYNC_SECRETS_KEY_FILE"
	EnvNATSURL           = "TOPOSYNC_NATS_URL"
	EnvSeedPath          = "TOPOSYNC_SEED_PATH"
)

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		EnvLogLevel:       &c.Log.Level,
		EnvLogFormat:      &c.Log.Format,
		EnvDatabasePath:   &c.Database.Path,
		EnvHTTPAddr:       &c.HTTP.Addr,
		EnvPeeringDBURL:   &c.PeeringDB.BaseURL,
		EnvSecretsKeyFile: &c.Secrets.KeyFile,
		EnvNATSURL:        &c.NATS.URL,
		EnvSeedPath:       &c.Seed.Path,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if c.BGP.GroupingThreshold == nil {
		c.BGP.GroupingThreshold = new(int)
		*c.BGP.GroupingThreshold = DefaultGroupingThreshold
	}
	ints := map[string]*int{
		EnvGroupingThreshold: c.BGP.GroupingThreshold,
		EnvPollConcurrency:   &c.Poll.Concurrency,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvPeeringDBDisabled); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPeeringDBDisabled, err)
		}
		c.PeeringDB.Disabled = b
	}
	return nil
}
