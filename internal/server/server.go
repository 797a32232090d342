package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/preplab/preplab/internal/metrics"
	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/resolver"
	"github.com/preplab/preplab/internal/store"
)

type Server struct {
	store      *store.SQLiteStore
	registry   *registry.Registry
	resolver   *resolver.Resolver
	aggregator *metrics.Aggregator
	logger     *zap.Logger

	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
}

func New(s *store.SQLiteStore, reg *registry.Registry, res *resolver.Resolver, agg *metrics.Aggregator, port int, tokenFile string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &Server{
		store:      s,
		registry:   reg,
		resolver:   res,
		aggregator: agg,
		logger:     logger,
		port:       port,
		token:      generateToken(),
		tokenFile:  tokenFile,
		router:     http.NewServeMux(),
		startTime:  time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/v1/variant", s.handleVariant)
	s.router.HandleFunc("/v1/assignments/force", s.handleForce)
	s.router.HandleFunc("/v1/purchase", s.handlePurchase)
	s.router.Handle("/metrics", promhttp.Handler())

	// Admin endpoints (token protected)
	s.router.Handle("/admin/api/experiments", s.authMiddleware(http.HandlerFunc(s.handleExperimentsAPI)))
	s.router.Handle("/admin/api/metrics", s.authMiddleware(http.HandlerFunc(s.handleMetricsAPI)))
}

func (s *Server) Start() error {
	return s.StartWithOptions(true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet() error {
	return s.StartWithOptions(false)
}

func (s *Server) StartWithOptions(printMessages bool) error {
	// Write token to file for the otp command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.port)

	if printMessages {
		fmt.Println()
		fmt.Printf("preplab running on http://localhost:%d\n", s.port)
		fmt.Printf("Admin API: http://localhost:%d/admin/api/experiments?token=%s\n", s.port, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
