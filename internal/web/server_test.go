package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/routedb/internal/config"
	"github.com/saltyorg/routedb/internal/database"
	"github.com/saltyorg/routedb/internal/dbrouter"
	"github.com/saltyorg/routedb/internal/metrics"
	"github.com/saltyorg/routedb/internal/monitor"
	"github.com/saltyorg/routedb/internal/tutorials"
	"github.com/saltyorg/routedb/internal/web/handlers"
)

type testServer struct {
	handler  http.Handler
	handlers *handlers.Handlers
	db       *database.DB
}

func newTestServer(t *testing.T, allowedNet *net.IPNet) *testServer {
	t.Helper()
	tmp := t.TempDir()

	reg := prometheus.NewRegistry()
	routing := metrics.NewRoutingMetricsWithRegistry(reg)

	cfg := config.DatabaseConfig{
		DefaultTarget: "replica",
		DataSources: map[string]config.DataSourceConfig{
			"primary": config.DefaultDataSource("sqlite", filepath.Join(tmp, "primary.db")),
			"replica": config.DefaultDataSource("sqlite", filepath.Join(tmp, "replica.db")),
		},
	}
	db, err := database.Open(context.Background(), cfg, dbrouter.WithObserver(routing))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.MigrateTargets(context.Background(), true))

	h := handlers.New(tutorials.New(db), db)
	srv := NewServer(h, config.ServerConfig{Port: 8080}, config.DefaultTimeoutConfig(), allowedNet,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &testServer{handler: srv.Handler(), handlers: h, db: db}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestTutorialsAPI_WritesOnPrimaryReadsOnReplica(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/tutorials", `{"title":"Routing","description":"pools"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[database.Tutorial](t, rec)
	assert.NotZero(t, created.ID)

	// The replica is a separate file, so the write is not visible there
	rec = s.do(t, http.MethodGet, "/api/tutorials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]database.Tutorial](t, rec))

	rec = s.do(t, http.MethodGet, "/api/tutorials/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctx, scope := dbrouter.Bind(context.Background(), dbrouter.Primary)
	defer scope.Release()
	count, err := s.db.CountTutorials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTutorialsAPI_PrimaryLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/tutorials", `{"title":"Draft"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[database.Tutorial](t, rec).ID

	path := "/api/tutorials/" + strconv.FormatInt(id, 10)

	rec = s.do(t, http.MethodPut, path, `{"title":"Revised","description":"more"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Revised", decode[database.Tutorial](t, rec).Title)

	rec = s.do(t, http.MethodPost, path+"/publish", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	published := decode[database.Tutorial](t, rec)
	assert.True(t, published.Published)
	assert.NotNil(t, published.PublishedAt)

	rec = s.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTutorialsAPI_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"missing title", http.MethodPost, "/api/tutorials", `{"description":"x"}`},
		{"malformed body", http.MethodPost, "/api/tutorials", `{`},
		{"bad id", http.MethodGet, "/api/tutorials/abc", ""},
		{"bad published filter", http.MethodGet, "/api/tutorials?published=maybe", ""},
		{"negative limit", http.MethodGet, "/api/tutorials?limit=-1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string]string](t, rec), "error")
		})
	}
}

func TestCreateThenList(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/create", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, "true", rec.Body.String())

	// /list reads the replica, which never saw the insert
	rec = s.do(t, http.MethodGet, "/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]database.Tutorial](t, rec))

	ctx, scope := dbrouter.Bind(context.Background(), dbrouter.Primary)
	defer scope.Release()
	list, err := s.db.ListTutorials(ctx, database.TutorialFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "primary", list[0].Title)
}

func TestHealthzAndPools(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])

	rec = s.do(t, http.MethodGet, "/api/pools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pools struct {
		Default string                        `json:"default"`
		Pools   map[string]handlers.PoolStats `json:"pools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pools))
	assert.Equal(t, "replica", pools.Default)
	assert.Contains(t, pools.Pools, "primary")
	assert.Contains(t, pools.Pools, "replica")
}

func TestPools_ReportsMonitor(t *testing.T) {
	s := newTestServer(t, nil)

	m := monitor.NewManager(s.db, nil, "")
	m.SampleNow()
	require.NoError(t, m.Start())
	t.Cleanup(m.Stop)
	s.handlers.SetMonitor(m)

	rec := s.do(t, http.MethodGet, "/api/pools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Monitor handlers.MonitorInfo `json:"monitor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Monitor.Running)
	require.NotNil(t, body.Monitor.NextSample)
	assert.True(t, body.Monitor.NextSample.After(time.Now()))
	assert.NotNil(t, body.Monitor.LastSample)
}

// The built-in configuration uses two unreplicated SQLite files in the
// working directory; both must be usable right after startup.
func TestDefaultConfig_ReadsSucceedAfterStartup(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := config.Default()
	db, err := database.Open(context.Background(), cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.MigrateTargets(context.Background(), cfg.Database.MigrateAll))

	h := handlers.New(tutorials.New(db), db)
	handler := NewServer(h, cfg.Server, cfg.Timeouts, nil, nil).Handler()

	for _, path := range []string{"/create", "/list", "/api/tutorials"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "%s: %s", path, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/list", "").Code)

	rec := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `routedb_router_acquisitions_total{source="bound",target="replica"}`)
}

func TestAllowSubnet(t *testing.T) {
	_, allowed, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	s := newTestServer(t, allowed)

	// httptest requests come from 192.0.2.1
	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
