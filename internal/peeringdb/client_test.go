package peeringdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toposync/internal/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:   srv.URL,
		Timeout:   time.Second,
		RateLimit: 1000,
		RateBurst: 10,
	}, zerolog.Nop())
}

func TestClientASName(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"registered", http.StatusOK, `{"data":[{"name":"Example Transit"}]}`, "Example Transit", false},
		{"empty data", http.StatusOK, `{"data":[]}`, "", true},
		{"server error", http.StatusInternalServerError, `oops`, "", true},
		{"not found", http.StatusNotFound, `{}`, "", true},
		{"bad json", http.StatusOK, `{"data":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/net", r.URL.Path)
				assert.Equal(t, "64500", r.URL.Query().Get("asn"))
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			got, err := client.ASName(context.Background(), "64500")
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrExternalLookup)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	_, err := client.ASName(context.Background(), "1")
	assert.ErrorIs(t, err, domain.ErrExternalLookup)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(ClientConfig{}, zerolog.Nop())
	assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
	assert.Equal(t, 5*time.Second, c.cfg.Timeout)
}

type fakeLookup struct {
	calls atomic.Int32
	fn    func(asn string) (string, error)
}

func (f *fakeLookup) ASName(_ context.Context, asn string) (string, error) {
	f.calls.Add(1)
	return f.fn(asn)
}

func TestCacheStoresOnlySuccesses(t *testing.T) {
	fail := true
	lookup := &fakeLookup{fn: func(asn string) (string, error) {
		if asn == "64501" && fail {
			return "", domain.ErrExternalLookup
		}
		return "net-" + asn, nil
	}}
	cache := NewCache(lookup)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name, err := cache.ASName(ctx, "64500")
		require.NoError(t, err)
		assert.Equal(t, "net-64500", name)
	}
	assert.Equal(t, int32(1), lookup.calls.Load())

	_, err := cache.ASName(ctx, "64501")
	assert.ErrorIs(t, err, domain.ErrExternalLookup)
	assert.Equal(t, 1, cache.Len())

	fail = false
	name, err := cache.ASName(ctx, "64501")
	require.NoError(t, err)
	assert.Equal(t, "net-64501", name)
	assert.Equal(t, int32(3), lookup.calls.Load())
	assert.Equal(t, 2, cache.Len())
}
