package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/pkg/api/docs"
	"github.com/goran-ethernal/DIDIndexor/pkg/config"
	"github.com/goran-ethernal/DIDIndexor/pkg/indexer"
)

// Ensure docs are initialized
var _ = docs.SwaggerInfo

const shutdownCtxTimeout = 10 * time.Second

// Server represents the API HTTP server.
type Server struct {
	config  *config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer creates a new API server.
func NewServer(cfg *config.APIConfig, controller indexer.Controller, store ProjectionReader, log *logger.Logger) *Server {
	handler := NewHandler(controller, store, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)

	// Indexer control
	mux.HandleFunc("POST /api/v1/indexer/start", handler.StartIndexer)
	mux.HandleFunc("POST /api/v1/indexer/stop", handler.StopIndexer)

	// Projection reads
	mux.HandleFunc("GET /api/v1/dids", handler.ListDIDs)
	mux.HandleFunc("GET /api/v1/dids/{didHash}", handler.GetDID)
	mux.HandleFunc("GET /api/v1/dids/{didHash}/pointers", handler.GetPointers)
	mux.HandleFunc("GET /api/v1/dids/{didHash}/events", handler.GetDIDEvents)

	// History and diagnostics
	mux.HandleFunc("GET /api/v1/events", handler.GetEvents)
	mux.HandleFunc("GET /api/v1/faults", handler.GetFaults)
	mux.HandleFunc("GET /api/v1/stats", handler.GetStats)

	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	var h http.Handler = mux
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)

	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		log:     log,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves the API until ctx is cancelled. Indexing runs started through the API
// live as long as ctx.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API server is disabled")
		return nil
	}

	s.handler.lifetime = ctx
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	s.log.Infof("Starting API server on %s", s.config.ListenAddress)

	serveErr := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down API server...")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}

	s.log.Info("API server stopped")
	return nil
}
