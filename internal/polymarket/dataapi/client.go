package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/metrics"
	"github.com/AlanMarvin/polytrak/internal/ratelimit"
)

const apiName = "data"

// StatusError is returned for any non-200 upstream response
type StatusError struct {
	Code     int
	Endpoint string
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}

// StatusCode exposes the HTTP status to callers that classify failures
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Client handles communication with the Polymarket Data API
type Client struct {
	baseURL      string
	httpClient   *http.Client
	authMode     config.AuthMode
	bearerToken  string
	apiKey       string
	extraHeaders map[string]string
	limiter      *ratelimit.Limiter
}

// NewClient creates a new Data API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:      cfg.DataAPIBaseURL,
		httpClient:   &http.Client{Timeout: cfg.HTTPClientTimeout},
		authMode:     cfg.DataAPIAuthMode,
		bearerToken:  cfg.DataAPIBearerToken,
		apiKey:       cfg.DataAPIAPIKey,
		extraHeaders: cfg.DataAPIExtraHeaders,
		limiter:      ratelimit.New(cfg.DataAPIRPS, cfg.DataAPIBurst),
	}
}

// Positions fetches one page of a wallet's current positions
func (c *Client) Positions(ctx context.Context, user string, limit, offset int) ([]Position, error) {
	q := pageQuery(user, limit, offset)
	q.Set("sizeThreshold", "0")

	var positions []Position
	if err := c.getJSON(ctx, "positions", q, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// ClosedPositions fetches one page of a wallet's closed positions
func (c *Client) ClosedPositions(ctx context.Context, user string, limit, offset int) ([]ClosedPosition, error) {
	var positions []ClosedPosition
	if err := c.getJSON(ctx, "closed-positions", pageQuery(user, limit, offset), &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// Trades fetches one page of fills
func (c *Client) Trades(ctx context.Context, params TradeParams) ([]Trade, error) {
	q := pageQuery(params.User, params.Limit, params.Offset)
	// Upstream defaults to taker fills only; a wallet analysis needs both sides.
	q.Set("takerOnly", strconv.FormatBool(params.TakerOnly))
	if params.Market != "" {
		q.Set("market", params.Market)
	}
	if params.Side != "" {
		q.Set("side", params.Side)
	}

	var trades []Trade
	if err := c.getJSON(ctx, "trades", q, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// TradedCount returns how many markets a wallet has traded
func (c *Client) TradedCount(ctx context.Context, user string) (int, error) {
	q := url.Values{}
	q.Set("user", user)

	var resp TradedResponse
	if err := c.getJSON(ctx, "traded", q, &resp); err != nil {
		return 0, err
	}
	return resp.Traded, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, out any) (err error) {
	start := time.Now()
	defer func() { metrics.RecordAPIRequest(apiName, endpoint, time.Since(start), err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Endpoint: endpoint, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	switch c.authMode {
	case config.AuthModeBearer:
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	case config.AuthModeAPIKey:
		req.Header.Set("X-API-KEY", c.apiKey)
	case config.AuthModeNone:
		// No auth headers
	}

	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}
}

func pageQuery(user string, limit, offset int) url.Values {
	q := url.Values{}
	q.Set("user", user)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	q.Set("offset", strconv.Itoa(offset))
	return q
}

// TradeParams holds parameters for the Trades call
type TradeParams struct {
	User      string
	Limit     int
	Offset    int
	TakerOnly bool
	Market    string
	Side      string // BUY, SELL
}
