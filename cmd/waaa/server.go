package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
	"github.com/koustreak/waaa/internal/logger"
	"github.com/koustreak/waaa/internal/metrics"
)

// pools is the part of *database.Manager the admin routes read.
type pools interface {
	Names() []string
	Configured() []string
	Stats(name string) (database.Stats, error)
}

type admin struct {
	pools pools
	log   *logger.Logger
}

func newRouter(p pools, collector *metrics.Collector, log *logger.Logger) http.Handler {
	a := &admin{pools: p, log: log.Component("admin")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", a.health)
	r.Route("/pools", func(r chi.Router) {
		r.Get("/", a.listPools)
		r.Get("/{name}", a.getPool)
	})
	if collector != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	}
	return r
}

func (a *admin) health(w http.ResponseWriter, r *http.Request) {
	initialized := a.pools.Names()
	configured := a.pools.Configured()

	status, code := "ok", http.StatusOK
	if len(initialized) < len(configured) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"connections": initialized,
	})
}

func (a *admin) listPools(w http.ResponseWriter, r *http.Request) {
	out := make([]database.Stats, 0)
	for _, name := range a.pools.Names() {
		s, err := a.pools.Stats(name)
		if err != nil {
			// closed between Names and Stats
			continue
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *admin) getPool(w http.ResponseWriter, r *http.Request) {
	s, err := a.pools.Stats(chi.URLParam(r, "name"))
	if err != nil {
		code := errs.HTTPStatus(err)
		if errs.IsConnectionUnknown(err) {
			code = http.StatusNotFound
		}
		writeJSON(w, code, map[string]string{"error": err.Error(), "code": errs.CodeOf(err)})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *admin) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.DebugWith("admin request", logger.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
