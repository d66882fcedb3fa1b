package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/authava/authgate/internal/session"
	"github.com/authava/authgate/internal/store"
)

// RuleTableSource is the subset of *pipeline.Pipeline the health endpoint
// needs: the presently active rule bundle, so /healthz can report whether a
// table was ever successfully loaded and how large it is.
type RuleTableSource interface {
	Current() store.Bundle
}

// Options assembles the top-level HTTP surface (§6): the forward-auth
// endpoint, a liveness probe, the Prometheus scrape endpoint, and the
// conditionally-mounted admin surface.
type Options struct {
	Auth      http.Handler
	Metrics   http.Handler
	Admin     http.Handler    // nil when the admin surface is not mounted at all
	RuleTable RuleTableSource // nil skips rule-table status in /healthz
	Cache     session.Cache   // nil skips cache reachability in /healthz
}

const healthzCacheProbeTimeout = 2 * time.Second

type healthRuleTableStatus struct {
	Loaded bool `json:"loaded"`
	Rules  int  `json:"rules"`
}

type healthCacheStatus struct {
	Reachable bool `json:"reachable"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	RuleTable *healthRuleTableStatus `json:"rule_table,omitempty"`
	Cache     *healthCacheStatus     `json:"cache,omitempty"`
}

// healthHandler reports rule-table load status and cache backend
// reachability (§6). With no RuleTable or Cache collaborator configured it
// degrades to a bare liveness probe: always 200, status "ok".
func healthHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		code := http.StatusOK

		if opts.RuleTable != nil {
			bundle := opts.RuleTable.Current()
			resp.RuleTable = &healthRuleTableStatus{Loaded: true, Rules: len(bundle.Table.Rules)}
		}

		if opts.Cache != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthzCacheProbeTimeout)
			defer cancel()
			_, _, err := opts.Cache.Get(ctx, "__healthz__")
			reachable := err == nil
			resp.Cache = &healthCacheStatus{Reachable: reachable}
			if !reachable {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// NewRouter assembles the gateway's HTTP router.
func NewRouter(opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if opts.Auth != nil {
		r.Get("/auth", opts.Auth.ServeHTTP)
	}

	r.Get("/healthz", healthHandler(opts))

	if opts.Metrics != nil {
		r.Get("/metrics", opts.Metrics.ServeHTTP)
	}

	if opts.Admin != nil {
		r.Mount("/admin", opts.Admin)
	}

	return r
}
