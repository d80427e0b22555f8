package httpserver

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"railperf-gateway/internal/handlers"
	"railperf-gateway/internal/metrics"
	"railperf-gateway/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Search        *handlers.SearchHandler
	Auth          *handlers.AuthHandler
	Subscriptions *handlers.SubscriptionHandler
	Preferences   *handlers.PreferencesHandler
	Stations      *handlers.StationHandler
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers, publicDir string) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
	}).Handler)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(15 * time.Second)) // request timeout
	r.Use(middleware.MaxBodySize(512 * 1024))   // 512 KB max body

	// search + polling
	r.Post("/api/servicemetrics", h.Search.ServiceMetrics)
	r.Post("/api/servicedetails", h.Search.ServiceDetails)
	r.Get("/api/job/{id}", h.Search.JobStatus)

	// auth
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/me", h.Auth.Me)
	})

	// subscriptions + preferences
	r.Post("/api/subscribe", h.Subscriptions.Subscribe)
	r.Get("/api/subscriptions", h.Subscriptions.List)
	r.Delete("/api/subscription/{id}", h.Subscriptions.Delete)
	r.Post("/api/user/preferences", h.Preferences.Save)
	r.Get("/api/user/preferences", h.Preferences.Load)

	// station autocomplete
	r.Get("/api/stations", h.Stations.Search)

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())

	mountStatic(r, publicDir)
}

// mountStatic serves the web UI pages and assets.
func mountStatic(r *chi.Mux, publicDir string) {
	if publicDir == "" {
		return
	}

	page := func(name string) http.HandlerFunc {
		full := filepath.Join(publicDir, name)
		return func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, full)
		}
	}

	r.Get("/", page("index.html"))
	r.Get("/app", page("Dashboard.html"))
	r.Get("/manage", page("ManageSubscriptions.html"))
	r.Get("/login", page("login.html"))

	fs := http.FileServer(http.Dir(publicDir))
	r.Get("/static/*", http.StripPrefix("/static/", fs).ServeHTTP)
}
