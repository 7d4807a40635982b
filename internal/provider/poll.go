package provider

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"toposync/internal/collector"
	"toposync/internal/domain"
)

// DeviceResolver confirms that a device reference exists in the inventory
type DeviceResolver interface {
	GetObjectLight(ctx context.Context, className, id string) (*domain.ObjectLight, error)
}

// snmpRequired are checked in this order before any version specific key
var snmpRequired = []string{
	domain.ParamDeviceID,
	domain.ParamDeviceClass,
	domain.ParamIPAddress,
	domain.ParamPort,
	domain.ParamVersion,
}

// ValidateSNMP checks the parameters every SNMP data source needs. The
// first problem found is returned.
func ValidateSNMP(cfg *domain.DataSourceConfiguration) error {
	for _, key := range snmpRequired {
		if cfg.Param(key) == "" {
			return fmt.Errorf("%s of %s: %w", key, cfg.Label(), domain.ErrMissingParameter)
		}
	}

	var versionKeys []string
	switch v := cfg.Param(domain.ParamVersion); v {
	case domain.SNMPVersion2c:
		versionKeys = []string{domain.ParamCommunity}
	case domain.SNMPVersion3:
		versionKeys = []string{domain.ParamAuthProtocol, domain.ParamSecurityName}
	default:
		return fmt.Errorf("SNMP version %q of %s: %w", v, cfg.Label(), domain.ErrInvalidParameter)
	}
	for _, key := range versionKeys {
		if cfg.Param(key) == "" {
			return fmt.Errorf("%s of %s: %w", key, cfg.Label(), domain.ErrMissingParameter)
		}
	}
	return nil
}

// Poller collects a fixed set of SNMP tables from every configuration of a
// group. A failing configuration records its error and never affects the
// others.
type Poller struct {
	devices     DeviceResolver
	collector   collector.Collector
	tables      []collector.TableDef
	concurrency int
	log         zerolog.Logger
}

// NewPoller creates a poller for tables. Concurrency below one polls
// sequentially.
func NewPoller(devices DeviceResolver, coll collector.Collector, tables []collector.TableDef, concurrency int, log zerolog.Logger) *Poller {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Poller{
		devices:     devices,
		collector:   coll,
		tables:      tables,
		concurrency: concurrency,
		log:         log,
	}
}

// pollOutcome is what one configuration produced
type pollOutcome struct {
	tables []domain.TableData
	err    error
}

// Poll collects every configuration of cfgs. The context is checked before
// each configuration starts; a cancelled poll returns the context error.
func (p *Poller) Poll(ctx context.Context, cfgs []*domain.DataSourceConfiguration) (*domain.PollResult, error) {
	outcomes := make([]pollOutcome, len(cfgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, cfg := range cfgs {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tables, err := p.pollOne(gctx, cfg)
			outcomes[i] = pollOutcome{tables: tables, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := domain.NewPollBuilder()
	for i, cfg := range cfgs {
		if outcomes[i].err != nil {
			p.log.Warn().Err(outcomes[i].err).Str("data_source", cfg.Label()).Msg("poll failed")
			b.AddError(cfg, outcomes[i].err)
			continue
		}
		b.AddTables(cfg, outcomes[i].tables...)
	}
	res := b.Build()
	p.log.Info().
		Int("configurations", len(cfgs)).
		Int("succeeded", res.SuccessCount()).
		Int("errors", res.ErrorCount()).
		Msg("poll complete")
	return res, nil
}

func (p *Poller) pollOne(ctx context.Context, cfg *domain.DataSourceConfiguration) ([]domain.TableData, error) {
	if err := ValidateSNMP(cfg); err != nil {
		return nil, err
	}

	ref := cfg.Device()
	if _, err := p.devices.GetObjectLight(ctx, ref.ClassName, ref.ID); err != nil {
		return nil, fmt.Errorf("device %s of class %s in %s: %v: %w",
			ref.ID, ref.ClassName, cfg.Label(), err, domain.ErrLookupNotFound)
	}

	target, err := collector.TargetFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	tables := make([]domain.TableData, 0, len(p.tables))
	for _, def := range p.tables {
		rows, err := p.collector.CollectTable(ctx, target, def)
		if err != nil {
			return nil, fmt.Errorf("%s from %s: %v: %w", def.Name, target, err, domain.ErrConnectionFailure)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%s from %s returned no data: %w", def.Name, target, domain.ErrConnectionFailure)
		}
		tables = append(tables, collector.ToTableData(def, rows))
	}
	p.log.Debug().Str("data_source", cfg.Label()).Str("target", target.String()).Int("tables", len(tables)).Msg("polled")
	return tables, nil
}
