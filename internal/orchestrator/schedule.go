package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"toposync/internal/domain"
)

// ErrRunInProgress is returned by Trigger while the previous run of the
// same schedule has not finished
var ErrRunInProgress = fmt.Errorf("previous run still in progress: %w", domain.ErrConflict)

// GroupSource loads synchronization groups by ID
type GroupSource interface {
	GetSyncGroup(ctx context.Context, id int64) (*domain.SynchronizationGroup, error)
}

// Schedule runs a set of groups periodically in automated mode
type Schedule struct {
	Name     string
	Interval time.Duration
	GroupIDs []int64
}

// Scheduler drives schedules with one ticker loop each. Groups are loaded
// on every tick so edits between runs are picked up. A tick is skipped
// while the schedule's previous job is still running.
type Scheduler struct {
	orch      *Orchestrator
	groups    GroupSource
	schedules []Schedule
	log       zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lastMu sync.Mutex
	last   map[string]string // schedule name to job ID
}

// NewScheduler validates schedules and creates a scheduler
func NewScheduler(orch *Orchestrator, groups GroupSource, schedules []Schedule, log zerolog.Logger) (*Scheduler, error) {
	for _, s := range schedules {
		if s.Interval <= 0 {
			return nil, fmt.Errorf("schedule %s: interval must be positive: %w", s.Name, domain.ErrInvalidArgument)
		}
		if len(s.GroupIDs) == 0 {
			return nil, fmt.Errorf("schedule %s: no groups: %w", s.Name, domain.ErrInvalidArgument)
		}
	}
	return &Scheduler{
		orch:      orch,
		groups:    groups,
		schedules: schedules,
		log:       log.With().Str("component", "scheduler").Logger(),
		last:      make(map[string]string),
	}, nil
}

// Start begins every ticker loop
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	for _, sched := range s.schedules {
		s.wg.Add(1)
		go s.loop(ctx, sched)
		s.log.Info().Str("schedule", sched.Name).Dur("interval", sched.Interval).Msg("schedule started")
	}
}

// Stop ends every loop and waits for them. Jobs already launched keep
// running until the orchestrator shuts down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sched Schedule) {
	defer s.wg.Done()

	ticker := time.NewTicker(sched.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Str("schedule", sched.Name).Msg("schedule stopped")
			return
		case <-ticker.C:
			_, err := s.Trigger(ctx, sched)
			switch {
			case errors.Is(err, ErrRunInProgress):
				s.log.Info().Str("schedule", sched.Name).Msg("previous run still running, tick skipped")
			case err != nil:
				s.log.Error().Err(err).Str("schedule", sched.Name).Msg("scheduled run not started")
			}
		}
	}
}

// Trigger launches one run of a schedule now, unless its previous run is
// still going
func (s *Scheduler) Trigger(ctx context.Context, sched Schedule) (Job, error) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if id, ok := s.last[sched.Name]; ok && s.orch.running(id) {
		return Job{}, fmt.Errorf("schedule %s, job %s: %w", sched.Name, id, ErrRunInProgress)
	}

	groups := make([]*domain.SynchronizationGroup, 0, len(sched.GroupIDs))
	for _, id := range sched.GroupIDs {
		g, err := s.groups.GetSyncGroup(ctx, id)
		if err != nil {
			return Job{}, fmt.Errorf("load group %d: %w", id, err)
		}
		groups = append(groups, g)
	}
	job, err := s.orch.Launch(ctx, ModeAutomated, groups)
	if err != nil {
		return Job{}, err
	}
	s.last[sched.Name] = job.ID
	s.log.Info().Str("schedule", sched.Name).Str("job", job.ID).Msg("scheduled run launched")
	return job, nil
}
