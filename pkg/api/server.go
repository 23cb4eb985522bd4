package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/taskflow/pkg/audit"
	"github.com/platinummonkey/taskflow/pkg/auth"
	"github.com/platinummonkey/taskflow/pkg/config"
	"github.com/platinummonkey/taskflow/pkg/directory"
	"github.com/platinummonkey/taskflow/pkg/groups"
	"github.com/platinummonkey/taskflow/pkg/httputil"
	"github.com/platinummonkey/taskflow/pkg/middleware"
	"github.com/platinummonkey/taskflow/pkg/notify"
	"github.com/platinummonkey/taskflow/pkg/observability"
	"github.com/platinummonkey/taskflow/pkg/rbac"
	"github.com/platinummonkey/taskflow/pkg/storage"
	"github.com/platinummonkey/taskflow/pkg/tasks"
)

// Dependencies are the collaborators the API server is assembled from.
// Redis, Notifier, Metrics and Registry are optional.
type Dependencies struct {
	DB       *sql.DB
	Reader   *sql.DB
	Redis    *redis.Client
	Blobs    storage.BlobStore
	Notifier notify.Notifier
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Server   config.ServerConfig
	Auth     config.AuthConfig
	Version  string
}

// Server routes every REST endpoint to its domain handlers
type Server struct {
	router  *mux.Router
	handler http.Handler

	Directory *directory.Service
	Roles     *rbac.Service
	Tasks     *tasks.Engine
	Groups    *groups.Service
	Activity  *audit.DBRecorder
}

// NewServer builds the services and routes. ctx bounds background work such
// as in-process rate limiter cleanup.
func NewServer(ctx context.Context, deps Dependencies) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.FromContext(ctx)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NoopNotifier{}
	}

	tokens := auth.NewTokenManager(deps.Auth.JWTSecret, deps.Auth.TokenTTL)
	cache := identityCache(deps)
	invalidator := auth.InstrumentInvalidator(cache, deps.Metrics)
	activity := audit.NewDBRecorder(deps.DB, deps.Reader, deps.Logger)

	s := &Server{
		router: mux.NewRouter(),
		Directory: directory.NewService(deps.DB, tokens, invalidator, activity, deps.Metrics, directory.Options{
			MaxFailedLogins: deps.Auth.MaxFailedLogins,
			LockoutDuration: deps.Auth.LockoutDuration,
		}),
		Roles:    rbac.NewService(deps.DB, invalidator, activity),
		Tasks:    tasks.NewEngine(deps.DB, deps.Blobs, deps.Notifier, activity, deps.Metrics),
		Groups:   groups.NewService(deps.DB, activity),
		Activity: activity,
	}

	resolver := auth.NewResolver(tokens, cache, s.Directory, deps.Metrics)
	s.setupRoutes(deps, resolver, loginLimiter(ctx, deps))

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.CORSMiddleware(deps.Server.CORSOrigins),
	)(s.router)
	return s, nil
}

func (s *Server) setupRoutes(deps Dependencies, resolver *auth.Resolver, loginLimiter middleware.Limiter) {
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	if deps.Registry != nil {
		observability.RegisterMetricsEndpoint(s.router, deps.Registry)
	}
	observability.RegisterHealthRoutes(s.router, observability.NewHealthChecker(deps.DB, deps.Redis, deps.Version))

	guard := rbac.NewGuard(deps.Metrics)
	directoryHandlers := directory.NewHandlers(s.Directory, guard)

	// Bodies on the JSON routes are capped; attachment uploads apply their own larger limit.
	public := s.router.NewRoute().Subrouter()
	if deps.Server.MaxBodyBytes > 0 {
		public.Use(httputil.MaxBytesMiddleware(deps.Server.MaxBodyBytes))
	}
	directoryHandlers.RegisterPublicRoutes(public,
		middleware.NewRateLimitMiddleware(loginLimiter, "login", deps.Metrics).Handler)

	protected := s.router.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthMiddleware(resolver).Handler)

	directoryHandlers.RegisterRoutes(protected)
	rbac.NewHandlers(s.Roles, guard).RegisterRoutes(protected)
	tasks.NewHandlers(s.Tasks, guard).RegisterRoutes(protected)
	groups.NewHandlers(s.Groups, guard).RegisterRoutes(protected)
	audit.NewHandlers(s.Activity).RegisterRoutes(protected, guard.RequirePermission(rbac.PermViewActivityLogs))

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "Route not found")
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

func identityCache(deps Dependencies) auth.IdentityCache {
	ttl := deps.Auth.IdentityCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if deps.Auth.IdentityCacheBackend == "redis" && deps.Redis != nil {
		return auth.NewRedisCache(deps.Redis, ttl)
	}
	size := deps.Auth.IdentityCacheMax
	if size <= 0 {
		size = 10000
	}
	return auth.NewLRUCache(size, ttl)
}

func loginLimiter(ctx context.Context, deps Dependencies) middleware.Limiter {
	cfg := middleware.LoginRateLimitConfig()
	if deps.Auth.LoginRateLimit > 0 {
		cfg.RequestsPerWindow = deps.Auth.LoginRateLimit
	}
	if deps.Auth.LoginRateWindow > 0 {
		cfg.WindowDuration = deps.Auth.LoginRateWindow
	}

	if deps.Redis != nil {
		return middleware.NewDistributedRateLimiter(deps.Redis, cfg, "taskflow:ratelimit")
	}
	limiter := middleware.NewRateLimiter(cfg)
	limiter.StartCleanup(ctx)
	return limiter
}
