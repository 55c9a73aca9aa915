package dataapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlanMarvin/polytrak/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*config.Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		DataAPIBaseURL:    srv.URL,
		DataAPIAuthMode:   config.AuthModeNone,
		DataAPIRPS:        1000,
		DataAPIBurst:      10,
		HTTPClientTimeout: 5 * time.Second,
	}
	for _, m := range mutate {
		m(cfg)
	}
	return NewClient(cfg)
}

func TestPositionsQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "0xabc", q.Get("user"))
		assert.Equal(t, "500", q.Get("limit"))
		assert.Equal(t, "1000", q.Get("offset"))
		_, _ = w.Write([]byte(`[{"asset":"1","conditionId":"c1","outcome":"Yes","curPrice":0.4,"cashPnl":1.5,"endDate":"2024-03-01"}]`))
	})

	positions, err := c.Positions(context.Background(), "0xabc", 500, 1000)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "1", positions[0].Asset)
	assert.Equal(t, 1.5, positions[0].CashPnl)
	assert.True(t, positions[0].EndDate.Known())
}

func TestTradesIncludeMakerFills(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("takerOnly"))
		_, _ = w.Write([]byte(`[{"transactionHash":"0x1","side":"SELL","size":10,"price":0.3,"timestamp":1700000000}]`))
	})

	trades, err := c.Trades(context.Background(), TradeParams{User: "0xabc", Limit: 50})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].IsSell())
}

func TestTradedCount(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/traded", r.URL.Path)
		_, _ = w.Write([]byte(`{"user":"0xabc","traded":42}`))
	})

	n, err := c.TradedCount(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestStatusError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := c.ClosedPositions(context.Background(), "0xabc", 50, 0)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode())
	assert.Equal(t, "closed-positions", se.Endpoint)
}

func TestAuthHeaders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		header string
		want   string
	}{
		{
			name: "bearer",
			mutate: func(c *config.Config) {
				c.DataAPIAuthMode = config.AuthModeBearer
				c.DataAPIBearerToken = "tok"
			},
			header: "Authorization",
			want:   "Bearer tok",
		},
		{
			name: "api key",
			mutate: func(c *config.Config) {
				c.DataAPIAuthMode = config.AuthModeAPIKey
				c.DataAPIAPIKey = "key"
			},
			header: "X-API-KEY",
			want:   "key",
		},
		{
			name: "extra headers",
			mutate: func(c *config.Config) {
				c.DataAPIExtraHeaders = map[string]string{"X-Client": "polytrak"}
			},
			header: "X-Client",
			want:   "polytrak",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.header)
				_, _ = w.Write([]byte(`[]`))
			}, tt.mutate)

			_, err := c.Positions(context.Background(), "0xabc", 10, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
