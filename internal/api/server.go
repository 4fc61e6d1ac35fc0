// Package api is the HTTP surface of the gateway: the A2A JSON-RPC
// facade, the agent card, admin endpoints and operational probes. It
// holds no business logic; every operation call goes to the executor.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/oschwald/geoip2-golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/adapters"
	"github.com/openadsales/gateway/internal/auth"
	"github.com/openadsales/gateway/internal/config"
	"github.com/openadsales/gateway/internal/db"
	"github.com/openadsales/gateway/internal/executor"
	"github.com/openadsales/gateway/internal/models"
	"github.com/openadsales/gateway/internal/observability"
)

// Server owns the router and the facade dependencies.
type Server struct {
	Router *mux.Router

	cfg      *config.Config
	store    models.Store
	postgres *db.Postgres
	auth     *auth.Registry
	exec     *executor.Executor
	registry *adapters.Registry
	syncLock *db.SyncLock
	metrics  observability.MetricsRegistry
	geoip    *geoip2.Reader
	logger   *zap.Logger
}

// Config collects the server dependencies. Postgres and GeoIP may be nil
// (memory-store deployments, no geo database mounted).
type Options struct {
	Cfg      *config.Config
	Store    models.Store
	Postgres *db.Postgres
	Auth     *auth.Registry
	Executor *executor.Executor
	Registry *adapters.Registry
	SyncLock *db.SyncLock
	Metrics  observability.MetricsRegistry
	GeoIP    *geoip2.Reader
	Logger   *zap.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		Router:   mux.NewRouter(),
		cfg:      opts.Cfg,
		store:    opts.Store,
		postgres: opts.Postgres,
		auth:     opts.Auth,
		exec:     opts.Executor,
		registry: opts.Registry,
		syncLock: opts.SyncLock,
		metrics:  opts.Metrics,
		geoip:    opts.GeoIP,
		logger:   opts.Logger.Named("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.Router
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.HandleFunc("/.well-known/agent-card.json", s.handleAgentCard).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/", s.handleAgentCard).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/rpc", s.handleRPC).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/bootstrap", s.handleBootstrap).Methods(http.MethodPost)
	admin.HandleFunc("/tenants/{tenant_id}/sync/{sync_type}", s.handleTriggerSync).Methods(http.MethodPost)
	admin.HandleFunc("/tenants/{tenant_id}/sync", s.handleSyncHistory).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{tenant_id}/sync/status/{sync_id}", s.handleSyncStatus).Methods(http.MethodGet)
}

// corsMiddleware allows the configured origins with credentials. Only GET
// and POST are exposed; the auth and tenant headers must be allowed for
// browser agents.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := s.cfg.CORSAllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, allowed) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-adcp-auth, x-adcp-tenant")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
