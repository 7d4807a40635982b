package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"toposync/internal/collector"
	"toposync/internal/config"
	"toposync/internal/events"
	"toposync/internal/loader"
	"toposync/internal/orchestrator"
	"toposync/internal/peeringdb"
	"toposync/internal/provider"
	"toposync/internal/reconcile"
	"toposync/internal/repository/sqlite"
	"toposync/internal/secrets"
)

// app holds the components every command shares
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	repo      *sqlite.Repository
	providers *provider.Registry
	bus       *events.Bus
	orch      *orchestrator.Orchestrator
	loader    *loader.Loader
}

func newApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	var sealer *secrets.Sealer
	if cfg.Secrets.KeyFile != "" {
		key, err := secrets.LoadKeyFile(cfg.Secrets.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key file: %w", err)
		}
		if sealer, err = secrets.NewSealer(key); err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("secrets.key_file is not set, SNMP credentials are stored in plaintext")
	}

	repo, err := sqlite.New(cfg.Database.Path, sqlite.WithSealer(sealer), sqlite.WithLogger(log))
	if err != nil {
		return nil, err
	}

	var names peeringdb.Lookup
	if !cfg.PeeringDB.Disabled {
		names = peeringdb.NewClient(peeringdb.ClientConfig{
			BaseURL:   cfg.PeeringDB.BaseURL,
			Timeout:   cfg.PeeringDB.Timeout.Duration(),
			RateLimit: cfg.PeeringDB.RateLimit,
			RateBurst: cfg.PeeringDB.Burst,
		}, log)
	}

	snmp := collector.NewSNMPCollector(log,
		collector.WithTimeout(cfg.SNMP.Timeout.Duration()),
		collector.WithMaxRepetitions(cfg.SNMP.MaxRepetitions),
	)

	registry := provider.NewRegistry(log)
	bgp := provider.NewBGPProvider(provider.BGPConfig{
		Store:     repo,
		Collector: snmp,
		Names:     names,
		Options: reconcile.Options{
			GroupingThreshold: cfg.BGP.GroupingThreshold,
			LocalASNVariable:  cfg.BGP.LocalASNVariable,
		},
		PollConcurrency: cfg.Poll.Concurrency,
	}, log)
	ip := provider.NewIPProvider(provider.IPConfig{
		Store:           repo,
		Collector:       snmp,
		PollConcurrency: cfg.Poll.Concurrency,
	}, log)
	for _, p := range []provider.Provider{bgp, ip} {
		if err := registry.Register(p); err != nil {
			repo.Close()
			return nil, err
		}
	}

	bus := events.NewBus()
	return &app{
		cfg:       cfg,
		log:       log,
		repo:      repo,
		providers: registry,
		bus:       bus,
		orch:      orchestrator.New(registry, repo, bus, log),
		loader:    loader.New(repo, log),
	}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}

// bootstrap loads config and builds the app for one command
func bootstrap() (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := cfg.NewLogger()
	if path != "" {
		log.Debug().Str("path", path).Msg("loaded config")
	}
	return newApp(cfg, log)
}

func schedulesFrom(cfg *config.Config) []orchestrator.Schedule {
	out := make([]orchestrator.Schedule, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		out = append(out, orchestrator.Schedule{
			Name:     s.Name,
			Interval: s.Interval.Duration(),
			GroupIDs: s.Groups,
		})
	}
	return out
}
