// Package api provides the HTTP trigger surface for on-demand harvest runs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/report-harvester/internal/logging"
	"github.com/report-harvester/internal/service"
)

// HarvesterService is the harvest surface the API exposes, kept as an
// interface for testing.
type HarvesterService interface {
	RunAll(ctx context.Context) *service.RunSummary
	RunOne(ctx context.Context, name string) (service.TypeResult, error)
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP trigger server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	harvester  HarvesterService
	config     *ServerConfig
}

// NewServer creates the API server.
func NewServer(config *ServerConfig, harvester HarvesterService) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		harvester: harvester,
		config:    config,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	s.router.Use(loggingMiddleware)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
}

// Router returns the configured router, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	readTimeout := s.config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := s.config.WriteTimeout
	if writeTimeout == 0 {
		// Harvest runs poll remote jobs; responses can take minutes.
		writeTimeout = 30 * time.Minute
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.GetGlobalLogger().WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("Request handled")
	})
}
