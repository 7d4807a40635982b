// Package peeringdb resolves autonomous system numbers to organization names
// through the PeeringDB REST API.
package peeringdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"toposync/internal/domain"
)

// DefaultBaseURL is the public PeeringDB endpoint
const DefaultBaseURL = "https://www.peeringdb.com"

// ClientConfig configures the lookup client
type ClientConfig struct {
	// BaseURL is the API root, without the /api suffix
	BaseURL string

	// Timeout bounds a single lookup (default: 5s)
	Timeout time.Duration

	// RateLimit in requests per second (default: 2)
	RateLimit float64

	// RateBurst is the limiter burst size (default: 1)
	RateBurst int

	// Transport allows injecting a custom HTTP transport
	Transport http.RoundTripper
}

// DefaultClientConfig returns a config with the defaults filled in
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   DefaultBaseURL,
		Timeout:   5 * time.Second,
		RateLimit: 2,
		RateBurst: 1,
	}
}

// Lookup resolves an AS number to a name
type Lookup interface {
	ASName(ctx context.Context, asn string) (string, error)
}

// Client is a rate limited PeeringDB client. Lookups are attempted once.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

var _ Lookup = (*Client)(nil)

// NewClient creates a client, filling zero config values with defaults
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		log:     log.With().Str("component", "peeringdb").Logger(),
	}
}

type netResponse struct {
	Data []struct {
		Name string `json:"name"`
	} `json:"data"`
}

// ASName returns the network name registered for asn. Every failure wraps
// domain.ErrExternalLookup.
func (c *Client) ASName(ctx context.Context, asn string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %v: %w", err, domain.ErrExternalLookup)
	}

	u := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/net?" + url.Values{"asn": {asn}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %v: %w", err, domain.ErrExternalLookup)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "toposync")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup AS%s: %v: %w", asn, err, domain.ErrExternalLookup)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("lookup AS%s: status %d: %w", asn, resp.StatusCode, domain.ErrExternalLookup)
	}

	var body netResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode AS%s: %v: %w", asn, err, domain.ErrExternalLookup)
	}
	if len(body.Data) == 0 || body.Data[0].Name == "" {
		return "", fmt.Errorf("AS%s is not registered: %w", asn, domain.ErrExternalLookup)
	}

	c.log.Debug().Str("asn", asn).Str("name", body.Data[0].Name).Msg("resolved AS name")
	return body.Data[0].Name, nil
}
