package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"toposync/internal/codec"
	"toposync/internal/domain"
	"toposync/internal/orchestrator"
)

// RunRequest selects what to synchronize. Groups run in the order given;
// data sources given by ID run last as one ad hoc group of ProviderID.
// ProviderIDs, when set, run in order over every group instead of each
// group's own provider.
type RunRequest struct {
	Mode          orchestrator.Mode `json:"mode"`
	GroupIDs      []int64           `json:"group_ids"`
	DataSourceIDs []int64           `json:"data_source_ids,omitempty"`
	ProviderID    string            `json:"provider_id,omitempty"`
	ProviderIDs   []string          `json:"provider_ids,omitempty"`
}

// adHocProvider is the provider an ad hoc group is created for
func (r RunRequest) adHocProvider() string {
	if r.ProviderID == "" && len(r.ProviderIDs) > 0 {
		return r.ProviderIDs[0]
	}
	return r.ProviderID
}

// StartRun launches a background run and returns the job
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = orchestrator.ModeAutomated
	}

	groups := make([]*domain.SynchronizationGroup, 0, len(req.GroupIDs)+1)
	for _, id := range req.GroupIDs {
		g, err := h.store.GetSyncGroup(r.Context(), id)
		if err != nil {
			h.fail(w, "Failed to load sync group", err)
			return
		}
		groups = append(groups, g)
	}

	if len(req.DataSourceIDs) > 0 {
		if _, err := h.providers.Get(req.adHocProvider()); err != nil {
			h.writeError(w, "Unknown provider", err.Error(), http.StatusBadRequest)
			return
		}
		cfgs := make([]*domain.DataSourceConfiguration, 0, len(req.DataSourceIDs))
		for _, id := range req.DataSourceIDs {
			cfg, err := h.store.GetDataSourceConfiguration(r.Context(), id)
			if err != nil {
				h.fail(w, "Failed to load data source", err)
				return
			}
			cfgs = append(cfgs, cfg)
		}
		groups = append(groups, domain.NewAdHocGroup(req.adHocProvider(), cfgs...))
	}

	job, err := h.runner.Launch(r.Context(), req.Mode, groups, req.ProviderIDs...)
	if err != nil {
		h.fail(w, "Run refused", err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	h.writeJSON(w, job, http.StatusAccepted)
}

// ListJobs returns every job, oldest first
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.runner.Jobs(), http.StatusOK)
}

// GetJob returns one job with its results or findings
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.runner.Job(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get job", err)
		return
	}
	h.writeJSON(w, job, http.StatusOK)
}

// KillJob cancels a running job
func (h *Handler) KillJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.runner.Kill(id); err != nil {
		h.fail(w, "Failed to kill job", err)
		return
	}
	job, err := h.runner.Job(id)
	if err != nil {
		h.fail(w, "Failed to get job", err)
		return
	}
	h.writeJSON(w, job, http.StatusAccepted)
}

// JobReport exports a finished job as json, yaml or table
func (h *Handler) JobReport(w http.ResponseWriter, r *http.Request) {
	job, err := h.runner.Job(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to get job", err)
		return
	}
	if job.State == orchestrator.JobRunning {
		h.writeError(w, "Job still running", job.ID, http.StatusConflict)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exp, err := codec.ExporterFor(format)
	if err != nil {
		h.fail(w, "Unsupported report format", err)
		return
	}

	report := codec.NewReport(string(job.Mode), job.Results, job.Findings)
	report.JobID = job.ID

	contentType := map[string]string{
		"json":  "application/json",
		"yaml":  "application/x-yaml",
		"table": "text/plain; charset=utf-8",
	}[exp.Format()]
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.%s", job.ID, exp.Format()))
	if err := exp.Export(report, w); err != nil {
		// headers are already sent
		h.log.Warn().Err(err).Str("job", job.ID).Msg("failed to export report")
	}
}

// FinalizeRequest carries operator decisions
type FinalizeRequest struct {
	Actions []domain.SyncAction `json:"actions"`
}

// Finalize applies approved actions through a provider
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	results, err := h.runner.Finalize(r.Context(), chi.URLParam(r, "id"), req.Actions)
	if err != nil {
		h.fail(w, "Failed to finalize", err)
		return
	}
	h.writeJSON(w, results, http.StatusOK)
}
