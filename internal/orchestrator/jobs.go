package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"toposync/internal/domain"
	"toposync/internal/events"
)

// JobState is the lifecycle state of a background job
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobKilled    JobState = "killed"
)

// Job is a snapshot of a background run
type Job struct {
	ID         string               `json:"id"`
	Mode       Mode                 `json:"mode"`
	Groups     []string             `json:"groups"`
	Providers  []string             `json:"providers,omitempty"`
	State      JobState             `json:"state"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Results    []domain.SyncResult  `json:"results,omitempty"`
	Findings   []domain.SyncFinding `json:"findings,omitempty"`
	Error      string               `json:"error,omitempty"`
}

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
	wg   sync.WaitGroup
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*jobEntry)}
}

// prune drops the oldest finished jobs beyond keep. Callers hold mu.
func (t *jobTable) prune(keep int) {
	var finished []*jobEntry
	for _, e := range t.jobs {
		if e.job.FinishedAt != nil {
			finished = append(finished, e)
		}
	}
	if len(finished) <= keep {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].job.FinishedAt.Before(*finished[j].job.FinishedAt) })
	for _, e := range finished[:len(finished)-keep] {
		delete(t.jobs, e.job.ID)
	}
}

// running reports whether a job exists and has not finished
func (o *Orchestrator) running(id string) bool {
	o.jobs.mu.RLock()
	e, ok := o.jobs.jobs[id]
	o.jobs.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Launch checks the groups and starts a run in the background. The job
// outlives the request that started it; only Kill or Shutdown cancel it.
// Provider IDs work as in RunAutomated.
func (o *Orchestrator) Launch(ctx context.Context, mode Mode, groups []*domain.SynchronizationGroup, providerIDs ...string) (Job, error) {
	switch mode {
	case ModeAutomated, ModeSupervised:
	default:
		return Job{}, fmt.Errorf("mode %q: %w", mode, domain.ErrInvalidArgument)
	}
	if len(groups) == 0 {
		return Job{}, fmt.Errorf("no synchronization group selected: %w", domain.ErrInvalidArgument)
	}
	if err := o.checkProviders(providerIDs); err != nil {
		return Job{}, err
	}
	if err := o.Preflight(ctx, groups); err != nil {
		return Job{}, err
	}

	providerIDs = append([]string(nil), providerIDs...)
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := &jobEntry{
		job: Job{
			ID:        uuid.NewString(),
			Mode:      mode,
			Groups:    names,
			Providers: providerIDs,
			State:     JobRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t := o.jobs
	t.mu.Lock()
	t.jobs[entry.job.ID] = entry
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(entry.done)
		defer cancel()

		out, err := o.run(runCtx, entry.job.ID, mode, groups, providerIDs)
		finished := time.Now().UTC()

		t.mu.Lock()
		defer t.mu.Unlock()
		entry.job.Results = out.results
		entry.job.Findings = out.findings
		entry.job.FinishedAt = &finished
		switch {
		case entry.job.State == JobKilled:
		case err != nil:
			entry.job.State = JobFailed
			entry.job.Error = err.Error()
		default:
			entry.job.State = JobCompleted
		}
		t.prune(o.retention)
	}()

	o.log.Info().Str("job", entry.job.ID).Str("mode", string(mode)).Strs("groups", names).
		Strs("providers", providerIDs).Msg("job launched")
	return o.snapshot(entry), nil
}

func (o *Orchestrator) snapshot(e *jobEntry) Job {
	o.jobs.mu.RLock()
	defer o.jobs.mu.RUnlock()
	return e.job
}

// Jobs lists every job, oldest first
func (o *Orchestrator) Jobs() []Job {
	o.jobs.mu.RLock()
	defer o.jobs.mu.RUnlock()
	out := make([]Job, 0, len(o.jobs.jobs))
	for _, e := range o.jobs.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Job returns one job
func (o *Orchestrator) Job(id string) (Job, error) {
	o.jobs.mu.RLock()
	defer o.jobs.mu.RUnlock()
	e, ok := o.jobs.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return e.job, nil
}

// Kill cancels a running job. The run stops at the next provider or
// configuration boundary; a reconciliation in progress completes.
func (o *Orchestrator) Kill(id string) error {
	o.jobs.mu.Lock()
	e, ok := o.jobs.jobs[id]
	if !ok {
		o.jobs.mu.Unlock()
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if e.job.State != JobRunning {
		state := e.job.State
		o.jobs.mu.Unlock()
		return fmt.Errorf("job %s is %s: %w", id, state, domain.ErrNotPermitted)
	}
	e.job.State = JobKilled
	o.jobs.mu.Unlock()

	e.cancel()
	o.events.Publish(events.Event{Type: events.JobKilled, JobID: id})
	o.log.Info().Str("job", id).Msg("job killed")
	return nil
}

// Wait blocks until the job finishes or ctx is done
func (o *Orchestrator) Wait(ctx context.Context, id string) (Job, error) {
	o.jobs.mu.RLock()
	e, ok := o.jobs.jobs[id]
	o.jobs.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	select {
	case <-e.done:
		return o.snapshot(e), nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Shutdown cancels every running job and waits for them to stop
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.jobs.mu.RLock()
	for _, e := range o.jobs.jobs {
		e.cancel()
	}
	o.jobs.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		o.jobs.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("jobs still running"), ctx.Err())
	}
}
