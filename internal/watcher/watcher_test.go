package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toposync/internal/events"
	"toposync/internal/loader"
	"toposync/internal/repository/sqlite"
)

const seed = `
variables:
  sync.bgp.localAsn: "64500"
objects:
  - class: City
    name: Cali
`

func TestWatcherDebouncesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	var calls atomic.Int32
	w := New(path, func() { calls.Add(1) }, zerolog.Nop()).WithDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "a burst of writes reloads once")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSeedReloaderPublishes(t *testing.T) {
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	bus := events.NewBus()
	ch := make(chan events.Event, 4)
	bus.Subscribe(ch)

	r := NewSeedReloader(loader.New(repo, zerolog.Nop()), path, bus, zerolog.Nop())
	stats, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Objects)

	e := <-ch
	assert.Equal(t, events.SeedReloaded, e.Type)
	payload := e.Payload.(SeedReload)
	assert.Equal(t, path, payload.Path)
	assert.Empty(t, payload.Error)

	require.NoError(t, os.WriteFile(path, []byte("objects:\n  - {name: nameless}\n"), 0o600))
	_, err = r.Reload(context.Background())
	require.Error(t, err)
	e = <-ch
	assert.NotEmpty(t, e.Payload.(SeedReload).Error)
}
