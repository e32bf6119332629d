package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshdurbin/offgate/internal/service"
)

// Server represents the HTTP server
type Server struct {
	handler http.Handler
	server  *http.Server
	port    string
}

// NewServer creates a new HTTP server. The admin API lives under
// /offgate/ so it can never shadow proxied dashboard routes; everything
// else funnels into the gateway proxy handler.
func NewServer(gateway service.Gateway, registry *prometheus.Registry, port string, verbose bool) *Server {
	handler := NewHandler(gateway)

	mux := http.NewServeMux()

	// Admin API endpoints
	mux.HandleFunc("/offgate/status", handler.Status)
	mux.HandleFunc("/offgate/queue", handler.QueueList)
	mux.HandleFunc("/offgate/queue/", handler.QueueDetail)
	mux.HandleFunc("/offgate/sync", handler.Sync)
	mux.HandleFunc("/offgate/records", handler.RecordsList)
	mux.HandleFunc("/offgate/records/sweep", handler.RecordsSweep)
	mux.HandleFunc("/offgate/records/", handler.RecordsDetail)

	// Metrics
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Gateway proxy (catch-all)
	mux.HandleFunc("/", handler.Proxy)

	// Wrap with middlewares
	var finalHandler http.Handler = mux

	// Add logging middleware first (outermost)
	if verbose {
		loggingMiddleware := NewLoggingMiddleware(verbose)
		finalHandler = loggingMiddleware.Middleware(finalHandler)
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      finalHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		handler: finalHandler,
		server:  server,
		port:    port,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Gateway listening on port %s", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Gateway shutting down...")
	return s.server.Shutdown(ctx)
}

// Port returns the server port
func (s *Server) Port() string {
	return s.port
}

// Handler returns the fully routed handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.handler
}
