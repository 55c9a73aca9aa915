package gammaapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlanMarvin/polytrak/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.Config{
		ProfileAPIBaseURL: srv.URL,
		ProfileAPIRPS:     1000,
		HTTPClientTimeout: 5 * time.Second,
	})
}

func TestGetProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profiles/0xabc", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"whale","pseudonym":"Big-Fish","profileImage":"https://img"}`))
	})

	p, err := c.GetProfile(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "whale", p.DisplayName())
	assert.Equal(t, "0xabc", p.ProxyWallet)
}

func TestGetProfileNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	p, err := c.GetProfile(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, "", p.DisplayName())
}

func TestGetProfileServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.GetProfile(context.Background(), "0xabc")
	assert.Error(t, err)
}
