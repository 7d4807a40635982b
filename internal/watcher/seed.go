package watcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"toposync/internal/events"
	"toposync/internal/loader"
)

// SeedReload is the payload of a seed.reloaded event
type SeedReload struct {
	Path  string       `json:"path"`
	Stats loader.Stats `json:"stats"`
	Error string       `json:"error,omitempty"`
}

// SeedReloader reapplies a seed file and announces the outcome
type SeedReloader struct {
	loader *loader.Loader
	path   string
	events events.Publisher
	log    zerolog.Logger

	mu sync.Mutex
}

// NewSeedReloader creates a reloader. A nil publisher discards events.
func NewSeedReloader(l *loader.Loader, path string, pub events.Publisher, log zerolog.Logger) *SeedReloader {
	if pub == nil {
		pub = events.Nop{}
	}
	return &SeedReloader{loader: l, path: path, events: pub, log: log}
}

// Reload applies the seed once. Concurrent calls are serialized.
func (r *SeedReloader) Reload(ctx context.Context) (loader.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, err := r.loader.ApplyFile(ctx, r.path)
	payload := SeedReload{Path: r.path, Stats: stats}
	if err != nil {
		payload.Error = err.Error()
		r.log.Error().Err(err).Str("path", r.path).Msg("seed reload failed")
	}
	r.events.Publish(events.Event{Type: events.SeedReloaded, Payload: payload})
	return stats, err
}

// Watch reloads on every change of the seed file until ctx is done
func (r *SeedReloader) Watch(ctx context.Context) error {
	w := New(r.path, func() { _, _ = r.Reload(ctx) }, r.log)
	return w.Watch(ctx)
}
