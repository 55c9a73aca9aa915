package gammaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/metrics"
	"github.com/AlanMarvin/polytrak/internal/ratelimit"
)

// Client handles communication with the Polymarket profile API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates a new profile API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.ProfileAPIBaseURL,
		httpClient: &http.Client{Timeout: cfg.HTTPClientTimeout},
		limiter:    ratelimit.New(cfg.ProfileAPIRPS, 1),
	}
}

// GetProfile fetches the public profile of address. A wallet that never set
// up a profile yields (nil, nil).
func (c *Client) GetProfile(ctx context.Context, address string) (profile *Profile, err error) {
	start := time.Now()
	defer func() { metrics.RecordAPIRequest("profile", "profiles", time.Since(start), err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + "/profiles/" + url.PathEscape(address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	// Profile API is public - no auth headers
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if p.ProxyWallet == "" {
		p.ProxyWallet = address
	}
	return &p, nil
}
