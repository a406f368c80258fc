package api

import (
	"FormCoach/internal/api/handlers"
	"FormCoach/internal/config"
	"FormCoach/internal/job"
	"FormCoach/internal/pipeline"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router     *chi.Mux
	engine     pipeline.Engine
	jobManager *job.Manager
	cfg        *config.Config
	logger     *zap.Logger
	httpServer *http.Server
}

func NewServer(engine pipeline.Engine, jobManager *job.Manager, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		engine:     engine,
		jobManager: jobManager,
		cfg:        cfg,
		logger:     logger,
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)

	// Timeouts are applied per route; uploads and SSE streams are long lived.

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	maxUpload := s.cfg.Server.MaxUploadMB << 20
	durable := s.cfg.Pipeline.Engine == "temporal"

	analyzeHandler := handlers.NewAnalyzeHandler(s.engine, maxUpload, s.logger)
	jobsHandler := handlers.NewJobsHandler(s.jobManager, s.engine, s.cfg.Pipeline.WorkDir, maxUpload, durable, s.logger)
	streamHandler := handlers.NewStreamHandler(s.jobManager, 0, s.logger)

	s.router.With(middleware.Timeout(10*time.Second)).Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// Synchronous analysis holds the request for the whole pipeline.
	s.router.Post("/analyze-video", analyzeHandler.Handle)
	s.router.Post("/analyze-video/", analyzeHandler.Handle)

	s.router.Post("/jobs", jobsHandler.CreateJob)
	s.router.With(middleware.Timeout(30*time.Second)).Get("/jobs/{id}", jobsHandler.GetJob)
	s.router.Get("/jobs/{id}/stream", streamHandler.StreamProgress)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"service": "formcoach",
		"engine":  s.cfg.Pipeline.Engine,
	})
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.router,
		// Vendor polling keeps synchronous requests open for minutes.
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 30 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.cfg.Server.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for background jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.jobManager.Shutdown(ctx)
}
