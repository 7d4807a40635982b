package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"toposync/internal/domain"
)

// Info is a read-only description of a registered provider
type Info struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"display_name"`
	Automated    bool                   `json:"automated"`
	Capabilities []string               `json:"capabilities"`
	Parameters   []domain.ParameterInfo `json:"parameters,omitempty"`
}

// Registry holds the providers known to the engine
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	log       zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		log:       log.With().Str("component", "providers").Logger(),
	}
}

// Register adds a provider. IDs are unique.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if id == "" {
		return fmt.Errorf("provider id is required: %w", domain.ErrInvalidArgument)
	}
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %s already registered: %w", id, domain.ErrConflict)
	}
	r.providers[id] = p
	r.log.Info().
		Str("provider", id).
		Bool("automated", p.IsAutomated()).
		Strs("capabilities", Capabilities(p)).
		Msg("registered provider")
	return nil
}

// Get returns the provider registered under id
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// List describes every provider ordered by ID
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.providers))
	for _, p := range r.providers {
		info := Info{
			ID:           p.ID(),
			DisplayName:  p.DisplayName(),
			Automated:    p.IsAutomated(),
			Capabilities: Capabilities(p),
		}
		if pp, ok := p.(Parameterized); ok {
			info.Parameters = pp.Parameters()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
