package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toposync/internal/domain"
	"toposync/internal/orchestrator"
	"toposync/internal/provider"
	"toposync/internal/repository/sqlite"
)

type stubProvider struct{ id string }

func (s stubProvider) ID() string          { return s.id }
func (s stubProvider) DisplayName() string { return "stub " + s.id }
func (s stubProvider) IsAutomated() bool   { return true }

// fakeRunner records launches and serves canned jobs
type fakeRunner struct {
	launched  [][]*domain.SynchronizationGroup
	providers [][]string
	jobs      map[string]orchestrator.Job
	launchErr error
	killed    []string
	finalized []domain.SyncAction
}

func (f *fakeRunner) Launch(_ context.Context, mode orchestrator.Mode, groups []*domain.SynchronizationGroup, providerIDs ...string) (orchestrator.Job, error) {
	if f.launchErr != nil {
		return orchestrator.Job{}, f.launchErr
	}
	f.launched = append(f.launched, groups)
	f.providers = append(f.providers, providerIDs)
	job := orchestrator.Job{ID: fmt.Sprintf("job-%d", len(f.launched)), Mode: mode, State: orchestrator.JobRunning}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeRunner) Jobs() []orchestrator.Job {
	out := make([]orchestrator.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

func (f *fakeRunner) Job(id string) (orchestrator.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return orchestrator.Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return j, nil
}

func (f *fakeRunner) Kill(id string) error {
	j, ok := f.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	j.State = orchestrator.JobKilled
	f.jobs[id] = j
	f.killed = append(f.killed, id)
	return nil
}

func (f *fakeRunner) Finalize(_ context.Context, providerID string, actions []domain.SyncAction) ([]domain.SyncResult, error) {
	if providerID != "bgp" {
		return nil, fmt.Errorf("provider %s: %w", providerID, domain.ErrNotFound)
	}
	f.finalized = append(f.finalized, actions...)
	return []domain.SyncResult{{Severity: domain.SeveritySuccess, Title: "applied"}}, nil
}

type testEnv struct {
	repo   *sqlite.Repository
	runner *fakeRunner
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	reg := provider.NewRegistry(zerolog.Nop())
	require.NoError(t, reg.Register(stubProvider{id: "bgp"}))

	runner := &fakeRunner{jobs: make(map[string]orchestrator.Job)}
	h := New(repo, runner, reg, zerolog.Nop())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &testEnv{repo: repo, runner: runner, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) seedGroup(t *testing.T) (groupID, dsID int64) {
	t.Helper()
	ctx := context.Background()
	groupID, err := e.repo.CreateSyncGroup(ctx, "edge", "bgp")
	require.NoError(t, err)
	dsID, err = e.repo.CreateDataSourceConfiguration(ctx, groupID, &domain.DataSourceConfiguration{
		Name: "r1",
		Parameters: map[string]string{
			domain.ParamDeviceID:  "dev-1",
			domain.ParamIPAddress: "10.0.0.1",
			domain.ParamCommunity: "s3cret",
		},
	})
	require.NoError(t, err)
	return groupID, dsID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSyncGroupCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/sync-groups", CreateSyncGroupRequest{Name: "core", ProviderID: "bgp"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[domain.SynchronizationGroup](t, resp)
	assert.NotZero(t, created.ID)

	path := fmt.Sprintf("/api/v1/sync-groups/%d", created.ID)
	resp = env.do(t, http.MethodPost, path+"/data-sources", DataSourceRequest{
		Name:       "r1",
		Parameters: map[string]string{domain.ParamDeviceID: "dev-1", domain.ParamCommunity: "public"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ds := decodeBody[domain.DataSourceConfiguration](t, resp)
	assert.Equal(t, domain.RedactedValue, ds.Parameters[domain.ParamCommunity])

	resp = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[domain.SynchronizationGroup](t, resp)
	require.Len(t, got.Configurations, 1)
	assert.Equal(t, domain.RedactedValue, got.Configurations[0].Parameters[domain.ParamCommunity])
	assert.Equal(t, "dev-1", got.Configurations[0].Parameters[domain.ParamDeviceID])

	resp = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSyncGroupErrors(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.seedGroup(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"unknown provider", CreateSyncGroupRequest{Name: "x", ProviderID: "nope"}, http.StatusBadRequest},
		{"duplicate name", CreateSyncGroupRequest{Name: "edge", ProviderID: "bgp"}, http.StatusConflict},
		{"missing name", CreateSyncGroupRequest{ProviderID: "bgp"}, http.StatusBadRequest},
		{"unknown field", map[string]string{"name": "x", "provider_id": "bgp", "colour": "red"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/sync-groups", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decodeBody[ErrorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestUpdateDataSourceKeepsRedactedSecret(t *testing.T) {
	env := newTestEnv(t)
	_, dsID := env.seedGroup(t)

	resp := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/data-sources/%d", dsID), DataSourceRequest{
		Name: "r1-renamed",
		Parameters: map[string]string{
			domain.ParamDeviceID:  "dev-1",
			domain.ParamIPAddress: "10.0.0.2",
			domain.ParamCommunity: domain.RedactedValue,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := env.repo.GetDataSourceConfiguration(context.Background(), dsID)
	require.NoError(t, err)
	assert.Equal(t, "r1-renamed", stored.Name)
	assert.Equal(t, "10.0.0.2", stored.Parameters[domain.ParamIPAddress])
	assert.Equal(t, "s3cret", stored.Parameters[domain.ParamCommunity])
}

func TestInvalidPathID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/data-sources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartRun(t *testing.T) {
	env := newTestEnv(t)
	groupID, dsID := env.seedGroup(t)

	resp := env.do(t, http.MethodPost, "/api/v1/runs", RunRequest{
		GroupIDs:      []int64{groupID},
		DataSourceIDs: []int64{dsID},
		ProviderID:    "bgp",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decodeBody[orchestrator.Job](t, resp)
	assert.Equal(t, orchestrator.ModeAutomated, job.Mode)
	assert.Equal(t, "/api/v1/jobs/"+job.ID, resp.Header.Get("Location"))

	require.Len(t, env.runner.launched, 1)
	groups := env.runner.launched[0]
	require.Len(t, groups, 2)
	assert.Equal(t, "edge", groups[0].Name)
	assert.Equal(t, domain.AdHocGroupID, groups[1].ID)
	assert.Equal(t, "s3cret", groups[1].Configurations[0].Parameters[domain.ParamCommunity])
	assert.Empty(t, env.runner.providers[0], "groups run with their own provider")
}

func TestStartRunWithProviderList(t *testing.T) {
	env := newTestEnv(t)
	groupID, dsID := env.seedGroup(t)

	resp := env.do(t, http.MethodPost, "/api/v1/runs", RunRequest{
		GroupIDs:      []int64{groupID},
		DataSourceIDs: []int64{dsID},
		ProviderIDs:   []string{"bgp", "ip"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, env.runner.providers, 1)
	assert.Equal(t, []string{"bgp", "ip"}, env.runner.providers[0])
	groups := env.runner.launched[0]
	require.Len(t, groups, 2)
	assert.Equal(t, "bgp", groups[1].ProviderID, "the ad hoc group takes the first listed provider")
}

func TestStartRunErrors(t *testing.T) {
	env := newTestEnv(t)
	_, dsID := env.seedGroup(t)

	tests := []struct {
		name      string
		req       RunRequest
		launchErr error
		status    int
	}{
		{"missing group", RunRequest{GroupIDs: []int64{99}}, nil, http.StatusNotFound},
		{"ad hoc without provider", RunRequest{DataSourceIDs: []int64{dsID}}, nil, http.StatusBadRequest},
		{"preflight", RunRequest{DataSourceIDs: []int64{dsID}, ProviderID: "bgp"},
			fmt.Errorf("r1: %w", orchestrator.ErrPreflight), http.StatusUnprocessableEntity},
		{"bad mode", RunRequest{Mode: "manual", DataSourceIDs: []int64{dsID}, ProviderID: "bgp"},
			fmt.Errorf("mode manual: %w", domain.ErrInvalidArgument), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.runner.launchErr = tt.launchErr
			resp := env.do(t, http.MethodPost, "/api/v1/runs", tt.req)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t)
	env.runner.jobs["done"] = orchestrator.Job{
		ID:    "done",
		Mode:  orchestrator.ModeAutomated,
		State: orchestrator.JobCompleted,
		Results: []domain.SyncResult{
			{DataSourceID: 1, Severity: domain.SeveritySuccess, Title: "Link created", Message: "r1 to r2"},
		},
	}
	env.runner.jobs["live"] = orchestrator.Job{ID: "live", State: orchestrator.JobRunning}

	resp := env.do(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]orchestrator.Job](t, resp), 2)

	resp = env.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	t.Run("report", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/jobs/done/report?format=yaml", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/x-yaml", resp.Header.Get("Content-Type"))
		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Link created")
		assert.Contains(t, buf.String(), "job_id: done")
	})

	t.Run("report of running job", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/jobs/live/report", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown format", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/jobs/done/report?format=xml", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("kill", func(t *testing.T) {
		resp := env.do(t, http.MethodDelete, "/api/v1/jobs/live", nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, orchestrator.JobKilled, decodeBody[orchestrator.Job](t, resp).State)
		assert.Equal(t, []string{"live"}, env.runner.killed)
	})
}

func TestFinalize(t *testing.T) {
	env := newTestEnv(t)
	actions := []domain.SyncAction{
		{Type: domain.ActionApply, Finding: domain.SyncFinding{Title: "add peer"}},
		{Type: domain.ActionSkip, Finding: domain.SyncFinding{Title: "drop peer"}},
	}

	resp := env.do(t, http.MethodPost, "/api/v1/providers/bgp/finalize", FinalizeRequest{Actions: actions})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]domain.SyncResult](t, resp), 1)
	assert.Len(t, env.runner.finalized, 2)

	resp = env.do(t, http.MethodPost, "/api/v1/providers/ip/finalize", FinalizeRequest{Actions: actions})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVariablesAndActivity(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/variables/sync.bgp.localAsn", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/v1/variables/sync.bgp.localAsn", Variable{Value: "65000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/variables/sync.bgp.localAsn", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, Variable{Name: "sync.bgp.localAsn", Value: "65000"}, decodeBody[Variable](t, resp))

	require.NoError(t, env.repo.CreateActivityLogEntry(context.Background(), "sync", domain.ActivityCreateObject, "created r1"))
	resp = env.do(t, http.MethodGet, "/api/v1/activity?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeBody[[]sqlite.ActivityEntry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, "created r1", entries[0].Note)

	resp = env.do(t, http.MethodGet, "/api/v1/activity?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOptionalRoutesAbsent(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/probe", "/api/v1/seed/reload"} {
		resp := env.do(t, http.MethodPost, path, map[string]string{})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	resp := env.do(t, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRejectsNonJSONBody(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.server.URL+"/api/v1/sync-groups", "text/plain", strings.NewReader("name=x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}
