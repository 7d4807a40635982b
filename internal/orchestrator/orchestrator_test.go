package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toposync/internal/domain"
	"toposync/internal/events"
	"toposync/internal/provider"
)

// fakeProvider polls nothing and reconciles through function fields
type fakeProvider struct {
	id   string
	poll func(ctx context.Context, g *domain.SynchronizationGroup) (*domain.PollResult, error)
	sync func(ctx context.Context, p *domain.PollResult) ([]domain.SyncResult, error)
}

func (f *fakeProvider) ID() string          { return f.id }
func (f *fakeProvider) DisplayName() string { return "fake " + f.id }
func (f *fakeProvider) IsAutomated() bool   { return true }

func (f *fakeProvider) MappedPoll(ctx context.Context, g *domain.SynchronizationGroup) (*domain.PollResult, error) {
	if f.poll != nil {
		return f.poll(ctx, g)
	}
	return domain.NewPollBuilder().Build(), nil
}

func (f *fakeProvider) AutomatedSync(ctx context.Context, p *domain.PollResult) ([]domain.SyncResult, error) {
	if f.sync != nil {
		return f.sync(ctx, p)
	}
	return nil, nil
}

// supervisedProvider adds planning and finalization
type supervisedProvider struct {
	fakeProvider
	plan     func(ctx context.Context, p *domain.PollResult) ([]domain.SyncFinding, error)
	finalize func(ctx context.Context, actions []domain.SyncAction) ([]domain.SyncResult, error)
}

func (s *supervisedProvider) SupervisedSync(ctx context.Context, p *domain.PollResult) ([]domain.SyncFinding, error) {
	return s.plan(ctx, p)
}

func (s *supervisedProvider) Finalize(ctx context.Context, actions []domain.SyncAction) ([]domain.SyncResult, error) {
	return s.finalize(ctx, actions)
}

type fakeProviders map[string]provider.Provider

func (f fakeProviders) Get(id string) (provider.Provider, error) {
	p, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// fakeDevices resolves the IDs it holds
type fakeDevices map[string]bool

func (f fakeDevices) GetObjectLight(_ context.Context, className, id string) (*domain.ObjectLight, error) {
	if !f[id] {
		return nil, fmt.Errorf("object %s: %w", id, domain.ErrNotFound)
	}
	return &domain.ObjectLight{ClassName: className, ID: id}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) progress() []events.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Progress
	for _, e := range r.events {
		if e.Type == events.SyncProgress {
			out = append(out, e.Payload.(events.Progress))
		}
	}
	return out
}

func group(name, providerID string, deviceIDs ...string) *domain.SynchronizationGroup {
	g := &domain.SynchronizationGroup{Name: name, ProviderID: providerID}
	for i, id := range deviceIDs {
		g.Configurations = append(g.Configurations, &domain.DataSourceConfiguration{
			ID:   int64(i + 1),
			Name: name + "-" + id,
			Parameters: map[string]string{
				domain.ParamDeviceID:    id,
				domain.ParamDeviceClass: domain.ClassRouter,
			},
		})
	}
	return g
}

func resultFor(title string) []domain.SyncResult {
	return []domain.SyncResult{{Severity: domain.SeveritySuccess, Title: title}}
}

func TestPreflightAbortsBeforePolling(t *testing.T) {
	polled := false
	p := &fakeProvider{id: "bgp", poll: func(context.Context, *domain.SynchronizationGroup) (*domain.PollResult, error) {
		polled = true
		return nil, nil
	}}
	rec := &recorder{}
	o := New(fakeProviders{"bgp": p}, fakeDevices{"r1": true}, rec, zerolog.Nop())

	bare := &domain.SynchronizationGroup{Name: "bare", ProviderID: "bgp", Configurations: []*domain.DataSourceConfiguration{
		{Name: "no-device", Parameters: map[string]string{domain.ParamIPAddress: "192.0.2.1"}},
	}}
	groups := []*domain.SynchronizationGroup{group("ok", "bgp", "r1"), bare, group("bad", "bgp", "r1", "gone")}

	_, err := o.RunAutomated(context.Background(), groups)

	require.ErrorIs(t, err, ErrPreflight)
	assert.Contains(t, err.Error(), "bad-gone")
	assert.NotContains(t, err.Error(), "no-device", "configurations without a device are left to the provider")
	assert.False(t, polled)
	assert.Empty(t, rec.types())

	assert.NoError(t, o.Preflight(context.Background(), groups[:2]))
}

func TestRunIsSequentialWithProgress(t *testing.T) {
	var mu sync.Mutex
	var order []string
	mk := func(id string) *fakeProvider {
		return &fakeProvider{id: id, sync: func(context.Context, *domain.PollResult) ([]domain.SyncResult, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return resultFor(id), nil
		}}
	}
	rec := &recorder{}
	o := New(fakeProviders{"a": mk("a"), "b": mk("b")}, fakeDevices{}, rec, zerolog.Nop())

	results, err := o.RunAutomated(context.Background(), []*domain.SynchronizationGroup{
		group("g1", "a"), group("g2", "b"), group("g3", "a"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "a"}, order)
	require.Len(t, results, 3)
	assert.Equal(t, "b", results[1].Title)

	assert.Equal(t, []events.Type{
		events.SyncStarted, events.SyncProgress, events.SyncProgress, events.SyncProgress, events.SyncCompleted,
	}, rec.types())
	progress := rec.progress()
	for i, p := range progress {
		assert.Equal(t, i+1, p.Completed)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, 1, p.Results)
	}
	assert.Equal(t, "b", progress[1].ProviderID)
}

func TestRunProvidersOverOneGroup(t *testing.T) {
	var mu sync.Mutex
	var order []string
	mk := func(id string) *fakeProvider {
		return &fakeProvider{id: id,
			poll: func(_ context.Context, g *domain.SynchronizationGroup) (*domain.PollResult, error) {
				mu.Lock()
				order = append(order, id+":"+g.Name)
				mu.Unlock()
				return domain.NewPollBuilder().Build(), nil
			},
			sync: func(context.Context, *domain.PollResult) ([]domain.SyncResult, error) {
				return resultFor(id), nil
			},
		}
	}
	rec := &recorder{}
	o := New(fakeProviders{"ip": mk("ip"), "bgp": mk("bgp")}, fakeDevices{}, rec, zerolog.Nop())
	groups := []*domain.SynchronizationGroup{group("core", "bgp")}

	results, err := o.RunAutomated(context.Background(), groups, "ip", "bgp")
	require.NoError(t, err)

	assert.Equal(t, []string{"ip:core", "bgp:core"}, order)
	require.Len(t, results, 2)
	assert.Equal(t, "ip", results[0].Title)
	assert.Equal(t, "bgp", results[1].Title)

	progress := rec.progress()
	require.Len(t, progress, 2)
	assert.Equal(t, events.Progress{ProviderID: "ip", Group: "core", Completed: 1, Total: 2, Results: 1}, progress[0])
	assert.Equal(t, events.Progress{ProviderID: "bgp", Group: "core", Completed: 2, Total: 2, Results: 1}, progress[1])

	types := rec.types()
	assert.Equal(t, events.SyncCompleted, types[len(types)-1])
	assert.Equal(t, events.Completion{Mode: "automated", Steps: 2, Results: 2}, rec.events[len(rec.events)-1].Payload)
}

func TestRunRejectsUnknownProvider(t *testing.T) {
	polled := false
	p := &fakeProvider{id: "bgp", poll: func(context.Context, *domain.SynchronizationGroup) (*domain.PollResult, error) {
		polled = true
		return nil, nil
	}}
	o := New(fakeProviders{"bgp": p}, fakeDevices{}, nil, zerolog.Nop())
	groups := []*domain.SynchronizationGroup{group("core", "bgp")}

	_, err := o.RunAutomated(context.Background(), groups, "bgp", "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = o.RunSupervised(context.Background(), groups, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = o.Launch(context.Background(), ModeAutomated, groups, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.False(t, polled)
	assert.Empty(t, o.Jobs())
}

func TestProviderFailureIsReportedAndQueueContinues(t *testing.T) {
	broken := &fakeProvider{id: "broken", poll: func(context.Context, *domain.SynchronizationGroup) (*domain.PollResult, error) {
		return nil, errors.New("collector exploded")
	}}
	ok := &fakeProvider{id: "ok", sync: func(context.Context, *domain.PollResult) ([]domain.SyncResult, error) {
		return resultFor("done"), nil
	}}
	o := New(fakeProviders{"broken": broken, "ok": ok}, fakeDevices{}, nil, zerolog.Nop())

	results, err := o.RunAutomated(context.Background(), []*domain.SynchronizationGroup{
		group("g1", "broken"), group("g2", "missing"), group("g3", "ok"),
	})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, domain.SeverityError, results[0].Severity)
	assert.Equal(t, "Provider broken failed for group g1", results[0].Title)
	assert.Contains(t, results[0].Message, "collector exploded")
	assert.Equal(t, domain.SeverityError, results[1].Severity)
	assert.Equal(t, "done", results[2].Title)
}

func TestRunSupervised(t *testing.T) {
	sup := &supervisedProvider{
		fakeProvider: fakeProvider{id: "ip"},
		plan: func(context.Context, *domain.PollResult) ([]domain.SyncFinding, error) {
			return []domain.SyncFinding{{Title: "Relate IP address", Action: domain.ActionApply}}, nil
		},
	}
	auto := &fakeProvider{id: "bgp"}
	o := New(fakeProviders{"ip": sup, "bgp": auto}, fakeDevices{}, nil, zerolog.Nop())

	findings, err := o.RunSupervised(context.Background(), []*domain.SynchronizationGroup{group("g1", "ip")})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, domain.ActionApply, findings[0].Action)

	// an automated-only provider cannot be supervised; the run reports it
	out, err := o.run(context.Background(), "", ModeSupervised, []*domain.SynchronizationGroup{group("g2", "bgp")}, nil)
	require.NoError(t, err)
	require.Len(t, out.results, 1)
	assert.Contains(t, out.results[0].Message, "does not support")
}

func TestFinalize(t *testing.T) {
	var got []domain.SyncAction
	sup := &supervisedProvider{
		fakeProvider: fakeProvider{id: "ip"},
		finalize: func(_ context.Context, actions []domain.SyncAction) ([]domain.SyncResult, error) {
			got = actions
			return resultFor("applied"), nil
		},
	}
	o := New(fakeProviders{"ip": sup, "bgp": &fakeProvider{id: "bgp"}}, fakeDevices{}, nil, zerolog.Nop())
	actions := []domain.SyncAction{{Type: domain.ActionApply}}

	results, err := o.Finalize(context.Background(), "ip", actions)
	require.NoError(t, err)
	assert.Equal(t, actions, got)
	assert.Equal(t, "applied", results[0].Title)

	_, err = o.Finalize(context.Background(), "bgp", actions)
	assert.ErrorIs(t, err, provider.ErrUnsupported)
	_, err = o.Finalize(context.Background(), "nope", actions)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobLifecycle(t *testing.T) {
	p := &fakeProvider{id: "bgp", sync: func(context.Context, *domain.PollResult) ([]domain.SyncResult, error) {
		return resultFor("linked"), nil
	}}
	o := New(fakeProviders{"bgp": p}, fakeDevices{"r1": true}, nil, zerolog.Nop())
	ctx := context.Background()

	job, err := o.Launch(ctx, ModeAutomated, []*domain.SynchronizationGroup{group("core", "bgp", "r1")})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, []string{"core"}, job.Groups)

	done, err := o.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, done.State)
	require.NotNil(t, done.FinishedAt)
	assert.Equal(t, "linked", done.Results[0].Title)

	listed := o.Jobs()
	require.Len(t, listed, 1)
	assert.Equal(t, job.ID, listed[0].ID)

	assert.ErrorIs(t, o.Kill(job.ID), domain.ErrNotPermitted)
	assert.ErrorIs(t, o.Kill("unknown"), domain.ErrNotFound)
	_, err = o.Job("unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = o.Launch(ctx, Mode("manual"), []*domain.SynchronizationGroup{group("core", "bgp")})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = o.Launch(ctx, ModeAutomated, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = o.Launch(ctx, ModeAutomated, []*domain.SynchronizationGroup{group("core", "bgp", "gone")})
	assert.ErrorIs(t, err, ErrPreflight)
	assert.Len(t, o.Jobs(), 1, "refused runs leave no job behind")
}

func TestLaunchRecordsProviders(t *testing.T) {
	o := New(fakeProviders{"ip": &fakeProvider{id: "ip"}, "bgp": &fakeProvider{id: "bgp"}}, fakeDevices{}, nil, zerolog.Nop())
	ctx := context.Background()

	job, err := o.Launch(ctx, ModeAutomated, []*domain.SynchronizationGroup{group("core", "bgp")}, "ip", "bgp")
	require.NoError(t, err)
	assert.Equal(t, []string{"ip", "bgp"}, job.Providers)

	done, err := o.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, done.State)
}

func TestJobRetention(t *testing.T) {
	p := &fakeProvider{id: "bgp"}
	o := New(fakeProviders{"bgp": p}, fakeDevices{}, nil, zerolog.Nop(), WithJobRetention(2))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		job, err := o.Launch(ctx, ModeAutomated, []*domain.SynchronizationGroup{group("core", "bgp")})
		require.NoError(t, err)
		_, err = o.Wait(ctx, job.ID)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	jobs := o.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[3], jobs[1].ID)
	_, err := o.Job(ids[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRetentionKeepsRunningJobs(t *testing.T) {
	release := make(chan struct{})
	block := &fakeProvider{id: "block", poll: func(ctx context.Context, _ *domain.SynchronizationGroup) (*domain.PollResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return domain.NewPollBuilder().Build(), nil
	}}
	fast := &fakeProvider{id: "fast"}
	o := New(fakeProviders{"block": block, "fast": fast}, fakeDevices{}, nil, zerolog.Nop(), WithJobRetention(1))
	ctx := context.Background()

	running, err := o.Launch(ctx, ModeAutomated, []*domain.SynchronizationGroup{group("slow", "block")})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		job, err := o.Launch(ctx, ModeAutomated, []*domain.SynchronizationGroup{group("quick", "fast")})
		require.NoError(t, err)
		_, err = o.Wait(ctx, job.ID)
		require.NoError(t, err)
	}

	jobs := o.Jobs()
	require.Len(t, jobs, 2, "one running job plus one finished")
	assert.Equal(t, running.ID, jobs[0].ID)
	assert.Equal(t, JobRunning, jobs[0].State)

	close(release)
	_, err = o.Wait(ctx, running.ID)
	require.NoError(t, err)
}

func TestKillStopsBetweenProviders(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := &fakeProvider{id: "slow", sync: func(context.Context, *domain.PollResult) ([]domain.SyncResult, error) {
		close(started)
		<-release
		return resultFor("slow done"), nil
	}}
	var nextRan bool
	next := &fakeProvider{id: "next", sync: func(context.Context, *domain.PollResult) ([]domain.SyncResult, error) {
		nextRan = true
		return nil, nil
	}}
	rec := &recorder{}
	o := New(fakeProviders{"slow": slow, "next": next}, fakeDevices{}, rec, zerolog.Nop())

	job, err := o.Launch(context.Background(), ModeAutomated, []*domain.SynchronizationGroup{
		group("g1", "slow"), group("g2", "next"),
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, o.Kill(job.ID))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := o.Wait(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, JobKilled, done.State)
	assert.False(t, nextRan, "the next provider never starts")
	require.Len(t, done.Results, 1, "the reconciliation in progress completes")
	assert.Equal(t, "slow done", done.Results[0].Title)

	types := rec.types()
	assert.Contains(t, types, events.JobKilled)
	assert.Equal(t, events.SyncFailed, types[len(types)-1])
}

func TestShutdownCancelsJobs(t *testing.T) {
	block := &fakeProvider{id: "block", poll: func(ctx context.Context, _ *domain.SynchronizationGroup) (*domain.PollResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := New(fakeProviders{"block": block}, fakeDevices{}, nil, zerolog.Nop())

	job, err := o.Launch(context.Background(), ModeAutomated, []*domain.SynchronizationGroup{group("g", "block")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	got, err := o.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.State)
	assert.Contains(t, got.Error, "context canceled")
}

type fakeGroups map[int64]*domain.SynchronizationGroup

func (f fakeGroups) GetSyncGroup(_ context.Context, id int64) (*domain.SynchronizationGroup, error) {
	g, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", id, domain.ErrNotFound)
	}
	return g, nil
}

func TestScheduler(t *testing.T) {
	p := &fakeProvider{id: "bgp"}
	o := New(fakeProviders{"bgp": p}, fakeDevices{}, nil, zerolog.Nop())
	groups := fakeGroups{1: group("core", "bgp")}

	_, err := NewScheduler(o, groups, []Schedule{{Name: "never", GroupIDs: []int64{1}}}, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = NewScheduler(o, groups, []Schedule{{Name: "empty", Interval: time.Second}}, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	s, err := NewScheduler(o, groups, []Schedule{{Name: "fast", Interval: 20 * time.Millisecond, GroupIDs: []int64{1}}}, zerolog.Nop())
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return len(o.Jobs()) >= 2 }, 5*time.Second, 10*time.Millisecond)
	s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	for _, j := range o.Jobs() {
		assert.Equal(t, []string{"core"}, j.Groups)
	}

	_, err = s.Trigger(context.Background(), Schedule{Name: "missing", GroupIDs: []int64{9}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSchedulerSkipsTickWhileRunning(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	release := make(chan struct{})
	block := &fakeProvider{id: "bgp", poll: func(ctx context.Context, _ *domain.SynchronizationGroup) (*domain.PollResult, error) {
		mu.Lock()
		polls++
		mu.Unlock()
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return domain.NewPollBuilder().Build(), nil
	}}
	o := New(fakeProviders{"bgp": block}, fakeDevices{}, nil, zerolog.Nop())
	sched := Schedule{Name: "fast", Interval: 20 * time.Millisecond, GroupIDs: []int64{1}}
	s, err := NewScheduler(o, fakeGroups{1: group("core", "bgp")}, []Schedule{sched}, zerolog.Nop())
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls == 1
	}, 5*time.Second, 5*time.Millisecond)

	// several intervals pass while the first run is blocked
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, o.Jobs(), 1)

	_, err = s.Trigger(context.Background(), sched)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, err, domain.ErrConflict)

	close(release)
	require.Eventually(t, func() bool { return len(o.Jobs()) >= 2 }, 5*time.Second, 10*time.Millisecond)
	s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))
	for _, j := range o.Jobs() {
		assert.NotEqual(t, JobRunning, j.State)
	}
}
