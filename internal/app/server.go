package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Procura/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Procura/internal/api/middlewares"
	"github.com/markdave123-py/Procura/internal/config"
	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/core/pipeline"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.TaskStore, orch *pipeline.Orchestrator, reaper *pipeline.Reaper) *Server {
	authHandler := handlers.NewAuthHandler(cfg)
	adminHandler := handlers.NewAdminHandler(store, orch, reaper, cfg.ReapAfter)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))
			protected.Post("/documents", adminHandler.EnqueueDocument)
			protected.Get("/queue/stats", adminHandler.QueueStats)
			protected.Get("/documents/stuck", adminHandler.StuckTasks)
			protected.Post("/documents/reset-stuck", adminHandler.ResetStuck)
			protected.Post("/process", adminHandler.TriggerRun)
			protected.Get("/jobs/{id}", adminHandler.GetJob)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
