package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/database/mysql"
	"github.com/koustreak/waaa/internal/errs"
	"github.com/koustreak/waaa/internal/logger"
	"github.com/koustreak/waaa/internal/metrics"
)

type fakePools struct {
	configured []string
	stats      map[string]database.Stats
}

func (f *fakePools) Configured() []string { return f.configured }

func (f *fakePools) Names() []string {
	var out []string
	for _, n := range f.configured {
		if _, ok := f.stats[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakePools) Stats(name string) (database.Stats, error) {
	s, ok := f.stats[name]
	if !ok {
		return database.Stats{}, errs.Newf(errs.ErrKindConnectionUnknown, "connection %s is unknown", name)
	}
	return s, nil
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdmin_Health(t *testing.T) {
	p := &fakePools{
		configured: []string{"main", "reports"},
		stats:      map[string]database.Stats{"main": {Name: "main", Limit: 2, Pool: 2}},
	}
	h := newRouter(p, nil, logger.Nop())

	rec := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	p.stats["reports"] = database.Stats{Name: "reports", Limit: 1, Pool: 1}
	rec = serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status      string   `json:"status"`
		Connections []string `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []string{"main", "reports"}, body.Connections)
}

func TestAdmin_Pools(t *testing.T) {
	p := &fakePools{
		configured: []string{"main"},
		stats: map[string]database.Stats{
			"main": {Name: "main", Driver: database.DriverMySQL, Limit: 4, Pool: 1, Available: 2, InUse: 1, Queued: 3, QueueLimit: 10},
		},
	}
	h := newRouter(p, nil, logger.Nop())

	rec := serve(t, h, "/pools")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []database.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, p.stats["main"], list[0])

	rec = serve(t, h, "/pools/main")
	require.Equal(t, http.StatusOK, rec.Code)
	var one database.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, 3, one.Queued)

	rec = serve(t, h, "/pools/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), errs.CodeConnectionUnknown)
}

func TestAdmin_Metrics(t *testing.T) {
	c := metrics.NewCollector("waaa_test")
	c.RecordQuery("main", nil, 5*time.Millisecond)

	h := newRouter(&fakePools{}, c, logger.Nop())
	rec := serve(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "waaa_test_queries_total"))
}

func TestAdmin_WithManager(t *testing.T) {
	m := database.New(map[string]database.ConnectionConfig{
		"main": {Driver: database.DriverMySQL, Host: "localhost", PoolLimit: 3},
	}, database.WithDialer(database.DriverMySQL, mysql.Dialer{}))
	defer m.Close()
	require.NoError(t, m.SetConnection("main"))

	rec := serve(t, newRouter(m, nil, logger.Nop()), "/pools/main")
	require.Equal(t, http.StatusOK, rec.Code)

	var s database.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, 3, s.Limit)
	assert.Equal(t, 3, s.Pool)
}
