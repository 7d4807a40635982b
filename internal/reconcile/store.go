package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"toposync/internal/domain"
	"toposync/internal/repository"
)

// Store is what a reconciliation reads and writes
type Store interface {
	repository.Inventory
	repository.AuditLog
	repository.ConfigStore
}

// session holds the state of one reconciliation of one device
type session struct {
	store  Store
	device domain.ObjectLight
	snap   *Snapshot
	res    *domain.Results
	log    zerolog.Logger

	// providers is the container found or created under the device city
	providers *domain.ObjectLight
}

func newSession(ctx context.Context, store Store, cfg *domain.DataSourceConfiguration, log zerolog.Logger) (*session, error) {
	ref := cfg.Device()
	device, err := store.GetObjectLight(ctx, ref.ClassName, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", ref.ID, err)
	}
	return &session{
		store:  store,
		device: *device,
		res:    domain.NewResults(cfg.ID),
		log: log.With().
			Int64("data_source", cfg.ID).
			Str("device", device.String()).
			Logger(),
	}, nil
}

// loadSnapshot reads the current structure, reporting a failure as an ERROR
func (s *session) loadSnapshot(ctx context.Context) bool {
	snap, err := BuildSnapshot(ctx, s.store, s.device)
	if err != nil {
		s.res.Error("Unexpected error reading current structure", "%v", err)
		return false
	}
	s.snap = snap
	return true
}

// audit records one side effect. A failed entry is logged, not reported.
func (s *session) audit(ctx context.Context, activity domain.ActivityType, format string, args ...any) {
	note := fmt.Sprintf(format, args...)
	if err := s.store.CreateActivityLogEntry(ctx, domain.SyncActor, activity, note); err != nil {
		s.log.Warn().Err(err).Str("note", note).Msg("failed to write activity log entry")
	}
}

// relate creates a relationship and audits it
func (s *session) relate(ctx context.Context, a, b domain.ObjectLight, name string, bidirectional bool) error {
	if err := s.store.CreateSpecialRelationship(ctx, a.ClassName, a.ID, b.ClassName, b.ID, name, bidirectional); err != nil {
		return err
	}
	s.audit(ctx, domain.ActivityCreateRelationship, "%s (%s), %s, %s (%s)", a, a.ID, name, b, b.ID)
	return nil
}
