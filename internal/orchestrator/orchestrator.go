// Package orchestrator runs synchronization providers over groups of data
// sources, one provider at a time, and keeps track of background jobs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"toposync/internal/domain"
	"toposync/internal/events"
	"toposync/internal/provider"
)

// ErrPreflight is returned when a run is refused before any device is
// contacted
var ErrPreflight = errors.New("pre-flight check failed")

// Mode selects how a run reconciles
type Mode string

const (
	ModeAutomated  Mode = "automated"
	ModeSupervised Mode = "supervised"
)

// DeviceResolver confirms that a device reference exists
type DeviceResolver interface {
	GetObjectLight(ctx context.Context, className, id string) (*domain.ObjectLight, error)
}

// Providers looks providers up by ID
type Providers interface {
	Get(id string) (provider.Provider, error)
}

// DefaultJobRetention is how many finished jobs are kept for inspection
const DefaultJobRetention = 100

// Orchestrator runs providers sequentially and reports progress
type Orchestrator struct {
	providers Providers
	devices   DeviceResolver
	events    events.Publisher
	log       zerolog.Logger

	jobs      *jobTable
	retention int
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithJobRetention caps the number of finished jobs kept in memory. The
// oldest finished jobs are dropped first; running jobs are never dropped.
func WithJobRetention(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.retention = n
		}
	}
}

// New creates an orchestrator. A nil publisher discards events.
func New(providers Providers, devices DeviceResolver, publisher events.Publisher, log zerolog.Logger, opts ...Option) *Orchestrator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	o := &Orchestrator{
		providers: providers,
		devices:   devices,
		events:    publisher,
		log:       log.With().Str("component", "orchestrator").Logger(),
		jobs:      newJobTable(),
		retention: DefaultJobRetention,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Preflight checks that every configuration naming a device points at a
// live object. Configurations without a device reference are left to
// provider validation.
func (o *Orchestrator) Preflight(ctx context.Context, groups []*domain.SynchronizationGroup) error {
	var offenders []string
	for _, g := range groups {
		for _, cfg := range g.Configurations {
			ref := cfg.Device()
			if ref.ID == "" || ref.ClassName == "" {
				continue
			}
			if _, err := o.devices.GetObjectLight(ctx, ref.ClassName, ref.ID); err != nil {
				offenders = append(offenders, fmt.Sprintf("%s (%s %s): %v", cfg.Label(), ref.ClassName, ref.ID, err))
			}
		}
	}
	if len(offenders) > 0 {
		return fmt.Errorf("%w: %s", ErrPreflight, strings.Join(offenders, "; "))
	}
	return nil
}

// RunAutomated polls and reconciles each group. With no provider IDs each
// group runs with its own provider; otherwise every listed provider runs
// over every group, in the given order.
func (o *Orchestrator) RunAutomated(ctx context.Context, groups []*domain.SynchronizationGroup, providerIDs ...string) ([]domain.SyncResult, error) {
	if err := o.checkProviders(providerIDs); err != nil {
		return nil, err
	}
	if err := o.Preflight(ctx, groups); err != nil {
		return nil, err
	}
	out, err := o.run(ctx, "", ModeAutomated, groups, providerIDs)
	return out.results, err
}

// RunSupervised polls each group and collects the proposed findings
func (o *Orchestrator) RunSupervised(ctx context.Context, groups []*domain.SynchronizationGroup, providerIDs ...string) ([]domain.SyncFinding, error) {
	if err := o.checkProviders(providerIDs); err != nil {
		return nil, err
	}
	if err := o.Preflight(ctx, groups); err != nil {
		return nil, err
	}
	out, err := o.run(ctx, "", ModeSupervised, groups, providerIDs)
	return out.findings, err
}

// Finalize applies approved actions through one provider
func (o *Orchestrator) Finalize(ctx context.Context, providerID string, actions []domain.SyncAction) ([]domain.SyncResult, error) {
	p, err := o.providers.Get(providerID)
	if err != nil {
		return nil, err
	}
	return provider.Finalize(ctx, p, actions)
}

// checkProviders rejects explicit provider IDs that are not registered
func (o *Orchestrator) checkProviders(ids []string) error {
	for _, id := range ids {
		if _, err := o.providers.Get(id); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
	}
	return nil
}

type runOutput struct {
	results  []domain.SyncResult
	findings []domain.SyncFinding
}

// step is one provider over one group
type step struct {
	group      *domain.SynchronizationGroup
	providerID string
}

func planSteps(groups []*domain.SynchronizationGroup, providerIDs []string) []step {
	var steps []step
	for _, g := range groups {
		if len(providerIDs) == 0 {
			steps = append(steps, step{group: g, providerID: g.ProviderID})
			continue
		}
		for _, id := range providerIDs {
			steps = append(steps, step{group: g, providerID: id})
		}
	}
	return steps
}

// run drains the step queue in order. A failing provider is reported
// and the queue continues; cancellation stops it between providers.
func (o *Orchestrator) run(ctx context.Context, jobID string, mode Mode, groups []*domain.SynchronizationGroup, providerIDs []string) (runOutput, error) {
	var out runOutput
	log := o.log.With().Str("job", jobID).Str("mode", string(mode)).Logger()

	queue := planSteps(groups, providerIDs)
	total := len(queue)
	o.events.Publish(events.Event{Type: events.SyncStarted, JobID: jobID, Payload: events.Progress{Total: total}})

	completed := 0
	var runErr error
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		st := queue[0]
		queue = queue[1:]

		before := len(out.results) + len(out.findings)
		if err := o.runStep(ctx, mode, st, &out); err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			log.Error().Err(err).Str("group", st.group.Name).Str("provider", st.providerID).Msg("provider failed")
			out.results = append(out.results, domain.SyncResult{
				DataSourceID: domain.AdHocGroupID,
				Severity:     domain.SeverityError,
				Title:        fmt.Sprintf("Provider %s failed for group %s", st.providerID, st.group.Name),
				Message:      err.Error(),
			})
		}
		completed++

		o.events.Publish(events.Event{Type: events.SyncProgress, JobID: jobID, Payload: events.Progress{
			ProviderID: st.providerID,
			Group:      st.group.Name,
			Completed:  completed,
			Total:      total,
			Results:    len(out.results) + len(out.findings) - before,
		}})
		log.Info().Str("provider", st.providerID).Str("group", st.group.Name).
			Int("completed", completed).Int("total", total).Msg("provider finished")
	}

	summary := events.Completion{
		Mode:      string(mode),
		Steps:     completed,
		Results:   len(out.results) + len(out.findings),
		Errors:    domain.CountSeverity(out.results, domain.SeverityError) + countFindingErrors(out.findings),
		Cancelled: errors.Is(runErr, context.Canceled),
	}
	eventType := events.SyncCompleted
	if runErr != nil {
		eventType = events.SyncFailed
		summary.Error = runErr.Error()
	}
	o.events.Publish(events.Event{Type: eventType, JobID: jobID, Payload: summary})
	return out, runErr
}

func (o *Orchestrator) runStep(ctx context.Context, mode Mode, st step, out *runOutput) error {
	p, err := o.providers.Get(st.providerID)
	if err != nil {
		return err
	}
	poll, err := provider.MappedPoll(ctx, p, st.group)
	if err != nil {
		return err
	}

	switch mode {
	case ModeSupervised:
		findings, err := provider.SupervisedSync(ctx, p, poll)
		out.findings = append(out.findings, findings...)
		return err
	default:
		results, err := provider.AutomatedSync(ctx, p, poll)
		out.results = append(out.results, results...)
		return err
	}
}

func countFindingErrors(findings []domain.SyncFinding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == domain.SeverityError {
			n++
		}
	}
	return n
}
