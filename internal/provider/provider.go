package provider

import (
	"context"
	"errors"
	"fmt"

	"toposync/internal/domain"
)

// ErrUnsupported is returned when a provider lacks a capability
var ErrUnsupported = errors.New("unsupported operation")

// Capability names, as reported by Capabilities
const (
	CapMappedPoll     = "mappedPoll"
	CapUnmappedPoll   = "unmappedPoll"
	CapAutomatedSync  = "automatedSync"
	CapSupervisedSync = "supervisedSync"
	CapFinalize       = "finalize"
)

// Provider identifies a synchronization provider
type Provider interface {
	// ID is the unique key sync groups refer to
	ID() string
	DisplayName() string
	// IsAutomated reports whether results are committed without supervision
	IsAutomated() bool
}

// MappedPoller polls every configuration of a synchronization group
type MappedPoller interface {
	MappedPoll(ctx context.Context, group *domain.SynchronizationGroup) (*domain.PollResult, error)
}

// UnmappedPoller polls a single configuration that belongs to no group
type UnmappedPoller interface {
	UnmappedPoll(ctx context.Context, cfg *domain.DataSourceConfiguration) (*domain.PollResult, error)
}

// AutomatedSyncer reconciles polled data directly into the inventory
type AutomatedSyncer interface {
	AutomatedSync(ctx context.Context, poll *domain.PollResult) ([]domain.SyncResult, error)
}

// SupervisedSyncer proposes changes for a user to approve
type SupervisedSyncer interface {
	SupervisedSync(ctx context.Context, poll *domain.PollResult) ([]domain.SyncFinding, error)
}

// Finalizer applies approved actions
type Finalizer interface {
	Finalize(ctx context.Context, actions []domain.SyncAction) ([]domain.SyncResult, error)
}

// Parameterized documents the data source parameters a provider reads
type Parameterized interface {
	Parameters() []domain.ParameterInfo
}

func unsupported(p Provider, capability string) error {
	return fmt.Errorf("provider %s does not support %s: %w", p.ID(), capability, ErrUnsupported)
}

// MappedPoll polls a group through p
func MappedPoll(ctx context.Context, p Provider, group *domain.SynchronizationGroup) (*domain.PollResult, error) {
	if mp, ok := p.(MappedPoller); ok {
		return mp.MappedPoll(ctx, group)
	}
	return nil, unsupported(p, CapMappedPoll)
}

// UnmappedPoll polls a single configuration through p
func UnmappedPoll(ctx context.Context, p Provider, cfg *domain.DataSourceConfiguration) (*domain.PollResult, error) {
	if up, ok := p.(UnmappedPoller); ok {
		return up.UnmappedPoll(ctx, cfg)
	}
	return nil, unsupported(p, CapUnmappedPoll)
}

// AutomatedSync reconciles a poll through p
func AutomatedSync(ctx context.Context, p Provider, poll *domain.PollResult) ([]domain.SyncResult, error) {
	if as, ok := p.(AutomatedSyncer); ok {
		return as.AutomatedSync(ctx, poll)
	}
	return nil, unsupported(p, CapAutomatedSync)
}

// SupervisedSync plans a poll through p
func SupervisedSync(ctx context.Context, p Provider, poll *domain.PollResult) ([]domain.SyncFinding, error) {
	if ss, ok := p.(SupervisedSyncer); ok {
		return ss.SupervisedSync(ctx, poll)
	}
	return nil, unsupported(p, CapSupervisedSync)
}

// Finalize applies actions through p
func Finalize(ctx context.Context, p Provider, actions []domain.SyncAction) ([]domain.SyncResult, error) {
	if f, ok := p.(Finalizer); ok {
		return f.Finalize(ctx, actions)
	}
	return nil, unsupported(p, CapFinalize)
}

// Capabilities lists what p implements, in a fixed order
func Capabilities(p Provider) []string {
	var caps []string
	if _, ok := p.(MappedPoller); ok {
		caps = append(caps, CapMappedPoll)
	}
	if _, ok := p.(UnmappedPoller); ok {
		caps = append(caps, CapUnmappedPoll)
	}
	if _, ok := p.(AutomatedSyncer); ok {
		caps = append(caps, CapAutomatedSync)
	}
	if _, ok := p.(SupervisedSyncer); ok {
		caps = append(caps, CapSupervisedSync)
	}
	if _, ok := p.(Finalizer); ok {
		caps = append(caps, CapFinalize)
	}
	return caps
}
