package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdb/services/api"
	"cmdb/services/inventory"
)

func report(sn string) map[string]any {
	return map[string]any{
		"asset_type":   "server",
		"sn":           sn,
		"model":        "ProLiant DL380",
		"manufacturer": "HPE",
		"ram":          []any{map[string]any{"slot": "PROC 1 DIMM 1", "capacity": 64}},
		"nics":         []any{map[string]any{"mac": "00:11:22:33:44:55"}},
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine, err := inventory.NewEngine(inventory.NewMemStore())
	require.NoError(t, err)
	a, err := api.New(engine, api.Options{})
	require.NoError(t, err)
	srv := httptest.NewServer(a.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := NewWithBaseURL(srv.URL, Config{Agent: "rack-12", Retries: 0}, zerolog.Nop())

	res, err := c.SubmitReport(ctx, report("SN-CLI-1"))
	require.NoError(t, err)
	assert.Equal(t, inventory.DispositionNew, res.Disposition)

	_, err = c.SubmitReport(ctx, report("SN-CLI-2"))
	require.NoError(t, err)

	pending, err := c.ListPending(ctx, inventory.PendingFilter{Manufacturer: "hpe"})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	staged, err := c.GetPending(ctx, "SN-CLI-1")
	require.NoError(t, err)
	assert.Equal(t, "rack-12", staged.SubmittedBy)

	id, err := c.Approve(ctx, "SN-CLI-1", "alice")
	require.NoError(t, err)

	_, err = c.Approve(ctx, "SN-CLI-1", "alice")
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	batch, err := c.RejectMany(ctx, []string{"SN-CLI-2", "SN-CLI-9"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)

	asset, err := c.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "SN-CLI-1", asset.SN)

	asset, err = c.AssetBySN(ctx, "SN-CLI-1")
	require.NoError(t, err)
	assert.Equal(t, id, asset.ID)

	assets, err := c.ListAssets(ctx, inventory.AssetFilter{AssetType: inventory.AssetTypeServer, Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, assets, 1)

	events, err := c.ListEvents(ctx, inventory.EventFilter{AssetID: &id})
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	err = c.Reject(ctx, "SN-CLI-1", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sn":"SN-R","disposition":"NOOP","staged":false}`))
	}))
	t.Cleanup(srv.Close)

	c := NewWithBaseURL(srv.URL, Config{Retries: 3}, zerolog.Nop())
	c.http.RetryWaitMin, c.http.RetryWaitMax = time.Millisecond, time.Millisecond

	res, err := c.SubmitReport(context.Background(), report("SN-R"))
	require.NoError(t, err)
	assert.Equal(t, inventory.DispositionNoop, res.Disposition)
	assert.EqualValues(t, 3, calls.Load())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: cmdb.example.com\nport: 8443\nscheme: https\nrequest_timeout: 10s\nagent: rack-12\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://cmdb.example.com:8443", cfg.BaseURL())
	assert.Equal(t, "/v1/reports", cfg.URL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout.Duration())
	assert.Equal(t, 3, cfg.Retries)

	require.NoError(t, os.WriteFile(path, []byte("server: cmdb.example.com\nscheme: http\n"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server: cmdb.example.com\nscheme: http\ninsecure: true\n"), 0o600))
	_, err = LoadConfig(path)
	assert.NoError(t, err)
}

func TestLoadConfigLegacyAgentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: localhost\nport: 8001\nurl: /assets/report/\nrequest_timeout: 30\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout.Duration())
	assert.Equal(t, "/assets/report/", cfg.URL)
	assert.Equal(t, "http://localhost:8001", cfg.BaseURL())

	for _, bad := range []string{"request_timeout: soon\n", "request_timeout: -5\n", "request_timeout: [1]\n"} {
		require.NoError(t, os.WriteFile(path, []byte("server: localhost\n"+bad), 0o600))
		_, err = LoadConfig(path)
		assert.Error(t, err, bad)
	}
}
