// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/storage"
	"github.com/wallet-scanner/internal/types"
)

// SnapshotEngine is the aggregation surface consumed by the handlers.
type SnapshotEngine interface {
	FetchWalletSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error)
	NativeBalance(ctx context.Context, address string) (*types.WalletSnapshot, error)
	TokenDetail(ctx context.Context, mint string) (*market.TokenMarketData, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	engine     SnapshotEngine
	snapshots  *storage.SnapshotCache
	log        *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance. snapshots may be nil to run
// without the serving-layer cache.
func NewServer(config *ServerConfig, engine SnapshotEngine, snapshots *storage.SnapshotCache, log *logging.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		engine:    engine,
		snapshots: snapshots,
		log:       log,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.log))
	s.router.Use(RecoveryMiddleware(s.log))
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/wallets/{address}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallets/{address}/balance", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/tokens/{mint}", s.handleGetToken).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "wallet-scanner",
	})
}

// Handler exposes the configured router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
