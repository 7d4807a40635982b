package provider

import (
	"context"

	"github.com/rs/zerolog"

	"toposync/internal/collector"
	"toposync/internal/domain"
	"toposync/internal/reconcile"
)

// IPProviderID is the key sync groups use for IP address synchronization
const IPProviderID = "ip"

// IPTables are collected from every IP address data source
var IPTables = []collector.TableDef{collector.IPAddrTable, collector.IfMIBTable}

// IPProvider relates device ports to the addresses they carry. It can run
// unsupervised or propose findings for approval.
type IPProvider struct {
	poller     *Poller
	reconciler *reconcile.IPReconciler
}

var (
	_ MappedPoller     = (*IPProvider)(nil)
	_ UnmappedPoller   = (*IPProvider)(nil)
	_ AutomatedSyncer  = (*IPProvider)(nil)
	_ SupervisedSyncer = (*IPProvider)(nil)
	_ Finalizer        = (*IPProvider)(nil)
)

// IPConfig wires an IPProvider
type IPConfig struct {
	Store           reconcile.Store
	Collector       collector.Collector
	PollConcurrency int
}

// NewIPProvider creates the provider
func NewIPProvider(cfg IPConfig, log zerolog.Logger) *IPProvider {
	log = log.With().Str("provider", IPProviderID).Logger()
	return &IPProvider{
		poller:     NewPoller(cfg.Store, cfg.Collector, IPTables, cfg.PollConcurrency, log),
		reconciler: reconcile.NewIPReconciler(cfg.Store, log),
	}
}

func (p *IPProvider) ID() string          { return IPProviderID }
func (p *IPProvider) DisplayName() string { return "IP Address Sync Provider" }
func (p *IPProvider) IsAutomated() bool   { return false }

// Parameters documents the SNMP keys an IP data source needs
func (p *IPProvider) Parameters() []domain.ParameterInfo {
	return domain.SNMPParameterInfos()
}

// MappedPoll collects the address and interface tables of a group
func (p *IPProvider) MappedPoll(ctx context.Context, group *domain.SynchronizationGroup) (*domain.PollResult, error) {
	return p.poller.Poll(ctx, group.Configurations)
}

// UnmappedPoll collects a single configuration
func (p *IPProvider) UnmappedPoll(ctx context.Context, cfg *domain.DataSourceConfiguration) (*domain.PollResult, error) {
	return p.poller.Poll(ctx, []*domain.DataSourceConfiguration{cfg})
}

// AutomatedSync applies every change directly
func (p *IPProvider) AutomatedSync(ctx context.Context, poll *domain.PollResult) ([]domain.SyncResult, error) {
	return automatedSync(ctx, poll, func(cfg *domain.DataSourceConfiguration, tables []domain.TableData) []domain.SyncResult {
		return p.reconciler.Reconcile(ctx, cfg, tables)
	})
}

// SupervisedSync turns poll errors and planned changes into findings
func (p *IPProvider) SupervisedSync(ctx context.Context, poll *domain.PollResult) ([]domain.SyncFinding, error) {
	var findings []domain.SyncFinding
	for _, cfg := range poll.Configurations() {
		for _, err := range poll.Errors(cfg) {
			findings = append(findings, domain.SyncFinding{
				DataSourceID: cfg.ID,
				Severity:     domain.SeverityError,
				Title:        "Severe error while processing data source configuration " + cfg.Label(),
				Message:      err.Error(),
				Action:       domain.ActionSkip,
			})
		}
	}
	for _, cfg := range poll.Configurations() {
		if !poll.HasTables(cfg) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		findings = append(findings, p.reconciler.Plan(ctx, cfg, poll.Tables(cfg))...)
	}
	return findings, nil
}

// Finalize applies approved findings; skipped ones are reported only
func (p *IPProvider) Finalize(ctx context.Context, actions []domain.SyncAction) ([]domain.SyncResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.reconciler.Apply(ctx, actions), nil
}
