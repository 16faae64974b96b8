package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/docingest/internal/api/handlers"
	"github.com/nikhilbhutani/docingest/internal/api/middleware"
	"github.com/nikhilbhutani/docingest/internal/auth"
	"github.com/nikhilbhutani/docingest/internal/cache"
	"github.com/nikhilbhutani/docingest/internal/config"
	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/intake"
	"github.com/nikhilbhutani/docingest/internal/observability"
)

type Deps struct {
	Store   document.Store
	Intake  *intake.Service
	Cache   *cache.DocumentCache
	Checks  map[string]handlers.Check
	Metrics *observability.Metrics
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), cfg: cfg, deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(20, 40)
	r.Use(rl.Limit)

	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	var docCache handlers.DocumentCache
	if rt.deps.Cache != nil {
		docCache = rt.deps.Cache
	}
	docH := handlers.NewDocumentHandler(rt.deps.Intake, rt.deps.Store, docCache,
		rt.cfg.Intake.MaxFiles, rt.cfg.Intake.MaxFileSize)

	r.Route("/api/v1", func(r chi.Router) {
		read := passthrough
		write := passthrough
		if rt.cfg.Auth.JWTSecret != "" {
			r.Use(auth.NewJWTMiddleware(rt.cfg.Auth.JWTSecret).Authenticate)
			rbac := auth.NewRBAC(auth.Roles)
			read = rbac.RequirePermission(auth.PermDocumentsRead)
			write = rbac.RequirePermission(auth.PermDocumentsWrite)
		}

		r.Route("/documents", func(r chi.Router) {
			r.With(write).Post("/", docH.Upload)
			r.With(read).Get("/", docH.List)
			r.With(read).Get("/{id}", docH.Get)
			r.With(read).Get("/{id}/chunk", docH.Chunk)
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
