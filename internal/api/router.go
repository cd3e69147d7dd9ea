package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// APIKey is the key that must be provided in X-API-Key or
	// Authorization: Bearer <key>. If empty, auth is skipped (dev mode).
	APIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (dev mode).
	CorsAllowedOrigins string

	// MediaRoot is the local media store directory, served under /media/.
	MediaRoot string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	// Local media store, served statically
	if cfg.MediaRoot != "" {
		fileServer := http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaRoot)))
		r.Get("/media/*", fileServer.ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(APIKeyAuth(cfg.APIKey))
		}

		// Assembly
		r.Post("/assemblies", h.CreateAssembly)

		// Generation jobs
		r.Post("/generations", h.CreateGeneration)
		r.Get("/generations/{id}", h.GetGeneration)

		// Storyboards
		r.Get("/storyboards", h.ListStoryboards)
		r.Post("/storyboards", h.CreateStoryboard)
		r.Get("/storyboards/{id}", h.GetStoryboard)
		r.Put("/storyboards/{id}", h.UpdateStoryboard)
		r.Delete("/storyboards/{id}", h.DeleteStoryboard)
		r.Post("/storyboards/{id}/assemble", h.AssembleStoryboard)

		// Uploads into the local media store
		r.Post("/uploads/{kind}", h.Upload)
	})

	return r
}
