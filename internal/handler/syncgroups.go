package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"toposync/internal/domain"
)

// ListProviders returns every registered provider
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.providers.List(), http.StatusOK)
}

func redactGroup(g *domain.SynchronizationGroup) *domain.SynchronizationGroup {
	out := *g
	out.Configurations = make([]*domain.DataSourceConfiguration, 0, len(g.Configurations))
	for _, cfg := range g.Configurations {
		out.Configurations = append(out.Configurations, cfg.Redacted())
	}
	return &out
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q: %w", raw, domain.ErrInvalidArgument)
	}
	return id, nil
}

// ListSyncGroups returns all groups with redacted configurations
func (h *Handler) ListSyncGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListSyncGroups(r.Context())
	if err != nil {
		h.fail(w, "Failed to list sync groups", err)
		return
	}
	out := make([]*domain.SynchronizationGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, redactGroup(g))
	}
	h.writeJSON(w, out, http.StatusOK)
}

// CreateSyncGroupRequest names a group and its provider
type CreateSyncGroupRequest struct {
	Name       string `json:"name"`
	ProviderID string `json:"provider_id"`
}

// CreateSyncGroup creates an empty group bound to a registered provider
func (h *Handler) CreateSyncGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateSyncGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.providers.Get(req.ProviderID); err != nil {
		h.writeError(w, "Unknown provider", err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.store.CreateSyncGroup(r.Context(), req.Name, req.ProviderID)
	if err != nil {
		h.fail(w, "Failed to create sync group", err)
		return
	}
	h.writeJSON(w, domain.SynchronizationGroup{
		ID:             id,
		Name:           req.Name,
		ProviderID:     req.ProviderID,
		Configurations: []*domain.DataSourceConfiguration{},
	}, http.StatusCreated)
}

// GetSyncGroup returns one group
func (h *Handler) GetSyncGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, "Invalid sync group ID", err)
		return
	}
	g, err := h.store.GetSyncGroup(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get sync group", err)
		return
	}
	h.writeJSON(w, redactGroup(g), http.StatusOK)
}

// DeleteSyncGroup removes a group and its configurations
func (h *Handler) DeleteSyncGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, "Invalid sync group ID", err)
		return
	}
	if err := h.store.DeleteSyncGroup(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete sync group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DataSourceRequest is the body of data source create and update
type DataSourceRequest struct {
	Name       string            `json:"name"`
	Parameters map[string]string `json:"parameters"`
}

// CreateDataSource appends a configuration to a group
func (h *Handler) CreateDataSource(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r)
	if err != nil {
		h.fail(w, "Invalid sync group ID", err)
		return
	}
	var req DataSourceRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg := &domain.DataSourceConfiguration{Name: req.Name, Parameters: req.Parameters}
	if _, err := h.store.CreateDataSourceConfiguration(r.Context(), groupID, cfg); err != nil {
		h.fail(w, "Failed to create data source", err)
		return
	}
	h.writeJSON(w, cfg.Redacted(), http.StatusCreated)
}

// GetDataSource returns one configuration, redacted
func (h *Handler) GetDataSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, "Invalid data source ID", err)
		return
	}
	cfg, err := h.store.GetDataSourceConfiguration(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get data source", err)
		return
	}
	h.writeJSON(w, cfg.Redacted(), http.StatusOK)
}

// UpdateDataSource replaces name and parameters. A sensitive parameter sent
// back redacted keeps its stored value.
func (h *Handler) UpdateDataSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, "Invalid data source ID", err)
		return
	}
	var req DataSourceRequest
	if !h.decode(w, r, &req) {
		return
	}

	current, err := h.store.GetDataSourceConfiguration(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get data source", err)
		return
	}
	params := make(map[string]string, len(req.Parameters))
	for k, v := range req.Parameters {
		if domain.IsSensitiveParameter(k) && v == domain.RedactedValue {
			v = current.Parameters[k]
		}
		params[k] = v
	}
	current.Name = req.Name
	current.Parameters = params

	if err := h.store.UpdateDataSourceConfiguration(r.Context(), current); err != nil {
		h.fail(w, "Failed to update data source", err)
		return
	}
	h.writeJSON(w, current.Redacted(), http.StatusOK)
}

// DeleteDataSource removes a configuration
func (h *Handler) DeleteDataSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, "Invalid data source ID", err)
		return
	}
	if err := h.store.DeleteDataSourceConfiguration(r.Context(), id); err != nil {
		h.fail(w, "Failed to delete data source", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
