package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"toposync/internal/domain"
)

// ListActivity returns recent audit entries; ?limit= bounds the count
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, "Invalid limit", raw, http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := h.store.ListActivityLog(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to list activity", err)
		return
	}
	h.writeJSON(w, entries, http.StatusOK)
}

// Variable is a configuration variable
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GetVariable returns a configuration variable
func (h *Handler) GetVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	value, err := h.store.GetConfigurationVariable(r.Context(), name)
	if err != nil {
		h.fail(w, "Failed to get variable", err)
		return
	}
	h.writeJSON(w, Variable{Name: name, Value: value}, http.StatusOK)
}

// SetVariable creates or replaces a configuration variable
func (h *Handler) SetVariable(w http.ResponseWriter, r *http.Request) {
	var req Variable
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = chi.URLParam(r, "name")
	if err := h.store.SetConfigurationVariable(r.Context(), req.Name, req.Value); err != nil {
		h.fail(w, "Failed to set variable", err)
		return
	}
	h.writeJSON(w, req, http.StatusOK)
}

// ProbeRequest names an SNMP agent
type ProbeRequest struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

// Probe checks that an agent port answers
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Address == "" {
		h.fail(w, "Address required", fmt.Errorf("address: %w", domain.ErrInvalidArgument))
		return
	}
	if req.Port == 0 {
		req.Port = 161
	}
	res, err := h.prober.Probe(r.Context(), req.Address, req.Port)
	if err != nil {
		h.writeError(w, "Probe failed", err.Error(), http.StatusBadGateway)
		return
	}
	h.writeJSON(w, res, http.StatusOK)
}

// ReloadSeed reapplies the inventory seed
func (h *Handler) ReloadSeed(w http.ResponseWriter, r *http.Request) {
	stats, err := h.seed.Reload(r.Context())
	if err != nil {
		h.fail(w, "Seed reload failed", err)
		return
	}
	h.writeJSON(w, stats, http.StatusOK)
}
