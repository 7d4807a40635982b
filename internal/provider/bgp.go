package provider

import (
	"context"

	"github.com/rs/zerolog"

	"toposync/internal/collector"
	"toposync/internal/domain"
	"toposync/internal/peeringdb"
	"toposync/internal/reconcile"
)

// BGPProviderID is the key sync groups use for BGP synchronization
const BGPProviderID = "bgp"

// BGPTables are collected from every BGP data source
var BGPTables = []collector.TableDef{collector.BGPPeerTable, collector.BGPLocalTable}

// BGPProvider discovers BGP sessions and records them as BGPLinks. It runs
// unsupervised.
type BGPProvider struct {
	poller     *Poller
	reconciler *reconcile.BGPReconciler
	names      peeringdb.Lookup
	log        zerolog.Logger
}

var (
	_ MappedPoller    = (*BGPProvider)(nil)
	_ AutomatedSyncer = (*BGPProvider)(nil)
)

// BGPConfig wires a BGPProvider
type BGPConfig struct {
	Store     reconcile.Store
	Collector collector.Collector
	// Names resolves AS names; nil falls back to "AS<number>"
	Names           peeringdb.Lookup
	Options         reconcile.Options
	PollConcurrency int
}

// NewBGPProvider creates the provider
func NewBGPProvider(cfg BGPConfig, log zerolog.Logger) *BGPProvider {
	log = log.With().Str("provider", BGPProviderID).Logger()
	return &BGPProvider{
		poller:     NewPoller(cfg.Store, cfg.Collector, BGPTables, cfg.PollConcurrency, log),
		reconciler: reconcile.NewBGPReconciler(cfg.Store, cfg.Options, log),
		names:      cfg.Names,
		log:        log,
	}
}

func (p *BGPProvider) ID() string          { return BGPProviderID }
func (p *BGPProvider) DisplayName() string { return "BGP Topology Sync Provider" }
func (p *BGPProvider) IsAutomated() bool   { return true }

// Parameters documents the SNMP keys a BGP data source needs
func (p *BGPProvider) Parameters() []domain.ParameterInfo {
	return domain.SNMPParameterInfos()
}

// MappedPoll collects the peer and local AS tables of every configuration
func (p *BGPProvider) MappedPoll(ctx context.Context, group *domain.SynchronizationGroup) (*domain.PollResult, error) {
	return p.poller.Poll(ctx, group.Configurations)
}

// AutomatedSync reports every poll error, then reconciles each
// configuration that produced tables. Each configuration gets its own AS
// name cache.
func (p *BGPProvider) AutomatedSync(ctx context.Context, poll *domain.PollResult) ([]domain.SyncResult, error) {
	return automatedSync(ctx, poll, func(cfg *domain.DataSourceConfiguration, tables []domain.TableData) []domain.SyncResult {
		var names *peeringdb.Cache
		if p.names != nil {
			names = peeringdb.NewCache(p.names)
		}
		return p.reconciler.Reconcile(ctx, cfg, tables, names)
	})
}

// automatedSync is the report-and-continue loop shared by the automated
// providers. Cancellation is honoured between configurations.
func automatedSync(ctx context.Context, poll *domain.PollResult, reconcileOne func(*domain.DataSourceConfiguration, []domain.TableData) []domain.SyncResult) ([]domain.SyncResult, error) {
	var results []domain.SyncResult
	for _, cfg := range poll.Configurations() {
		for _, err := range poll.Errors(cfg) {
			results = append(results, domain.SyncResult{
				DataSourceID: cfg.ID,
				Severity:     domain.SeverityError,
				Title:        "Severe error while processing data source configuration " + cfg.Label(),
				Message:      err.Error(),
			})
		}
	}

	for _, cfg := range poll.Configurations() {
		if !poll.HasTables(cfg) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, reconcileOne(cfg, poll.Tables(cfg))...)
	}
	return results, nil
}
