package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"toposync/internal/collector"
	"toposync/internal/domain"
	"toposync/internal/loader"
	"toposync/internal/orchestrator"
	"toposync/internal/provider"
	"toposync/internal/repository"
	"toposync/internal/repository/sqlite"
)

// Store is the persistence the API reads and edits
type Store interface {
	repository.SyncStore
	repository.ConfigStore
	ListActivityLog(ctx context.Context, limit int) ([]sqlite.ActivityEntry, error)
}

// Runner launches and tracks background runs
type Runner interface {
	Launch(ctx context.Context, mode orchestrator.Mode, groups []*domain.SynchronizationGroup, providerIDs ...string) (orchestrator.Job, error)
	Jobs() []orchestrator.Job
	Job(id string) (orchestrator.Job, error)
	Kill(id string) error
	Finalize(ctx context.Context, providerID string, actions []domain.SyncAction) ([]domain.SyncResult, error)
}

// Providers lists and resolves providers
type Providers interface {
	List() []provider.Info
	Get(id string) (provider.Provider, error)
}

// Prober checks that an SNMP agent answers
type Prober interface {
	Probe(ctx context.Context, address string, port uint16) (*collector.ProbeResult, error)
}

// SeedReloader reapplies the inventory seed
type SeedReloader interface {
	Reload(ctx context.Context) (loader.Stats, error)
}

// Handler serves the API
type Handler struct {
	store     Store
	runner    Runner
	providers Providers
	events    http.Handler
	prober    Prober
	seed      SeedReloader
	log       zerolog.Logger
}

// Option configures optional endpoints
type Option func(*Handler)

// WithEvents serves an event stream on /events
func WithEvents(h http.Handler) Option {
	return func(x *Handler) { x.events = h }
}

// WithProber enables POST /api/v1/probe
func WithProber(p Prober) Option {
	return func(x *Handler) { x.prober = p }
}

// WithSeedReloader enables POST /api/v1/seed/reload
func WithSeedReloader(s SeedReloader) Option {
	return func(x *Handler) { x.seed = s }
}

// New creates the API handler
func New(store Store, runner Runner, providers Providers, log zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:     store,
		runner:    runner,
		providers: providers,
		log:       log.With().Str("component", "http").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, msg, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: msg, Details: details}, statusCode)
}

// fail maps a domain error to a status code
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	}
	h.writeError(w, msg, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotPermitted):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrPreflight):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidParameter),
		errors.Is(err, domain.ErrMissingParameter),
		errors.Is(err, provider.ErrUnsupported):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
