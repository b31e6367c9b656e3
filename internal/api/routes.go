package api

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, apiToken string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - allow credentials so the dashboard can send the bearer token
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)

	// API routes (protected by bearer token)
	devMode := os.Getenv("DEV_MODE") == "true" || os.Getenv("ENVIRONMENT") == "development"

	r.Route("/api", func(r chi.Router) {
		// Apply auth middleware to all API routes (skip in dev mode)
		if apiToken != "" && !devMode {
			r.Use(bearerAuth(apiToken))
		}

		r.Route("/duplicates", func(r chi.Router) {
			r.Get("/", h.GetDuplicateGroups)
			r.Get("/stats", h.GetDuplicateStats)
			r.Post("/merge-group/{email}", h.MergeGroup)
			r.Post("/auto-merge", h.AutoMerge)
			r.Post("/unmerge/{id}", h.Unmerge)
		})

		r.Route("/import", func(r chi.Router) {
			r.Post("/", h.StartImport)
			r.Post("/preview", h.PreviewImport)
			r.Get("/jobs/active", h.ListImportJobs)
			r.Get("/job/{id}", h.GetImportJob)
			r.Post("/job/{id}/cancel", h.CancelImportJob)
		})

		r.Route("/verify", func(r chi.Router) {
			r.Post("/", h.StartVerification)
			r.Get("/jobs/active", h.ListVerificationJobs)
			r.Get("/job/{id}", h.GetVerificationJob)
			r.Post("/job/{id}/cancel", h.CancelVerificationJob)
		})
	})

	return r
}

// bearerAuth rejects requests whose Authorization header doesn't carry the
// configured token.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
