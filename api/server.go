package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opsorch/opsorch-multiquery/config"
	"github.com/opsorch/opsorch-multiquery/dispatch"
	"github.com/opsorch/opsorch-multiquery/logging"
)

const shutdownTimeout = 15 * time.Second

// Server routes HTTP requests to the query handlers.
type Server struct {
	corsOrigin  string
	bearerToken string
	tlsCertFile string
	tlsKeyFile  string
	serve       func(*http.Server) error                 // optional override for tests
	serveTLS    func(*http.Server, string, string) error // optional override for tests
	logger      *zap.Logger
	metrics     http.Handler
	query       QueryHandler
}

// NewServer constructs a Server from the process configuration. Metrics are served from
// gatherer when it is non-nil.
func NewServer(cfg *config.Config, d Dispatcher, registry dispatch.Snapshotter, logger *zap.Logger, gatherer prometheus.Gatherer) (*Server, error) {
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both OPSORCH_TLS_CERT_FILE and OPSORCH_TLS_KEY_FILE must be set together")
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}

	s := &Server{
		corsOrigin:  corsOrigin,
		bearerToken: strings.TrimSpace(cfg.BearerToken),
		tlsCertFile: cfg.TLSCertFile,
		tlsKeyFile:  cfg.TLSKeyFile,
		logger:      logger.With(zap.String("service", "http")),
		query:       QueryHandler{dispatcher: d, registry: registry},
	}
	if gatherer != nil {
		s.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS headers for frontend consumption.
	w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if !s.authorize(r) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	requestID := requestIDFromRequest(r)
	r.Header.Set("X-Request-ID", requestID)
	w.Header().Set("X-Request-ID", requestID)

	log := s.log().With(zap.String("request_id", requestID))
	r = r.WithContext(logging.NewContextWithLogger(r.Context(), log))
	log.Debug("Request", zap.String("method", r.Method), zap.String("path", r.URL.Path))

	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/metrics" && r.Method == http.MethodGet && s.metrics != nil:
		s.metrics.ServeHTTP(w, r)
	case s.handleProviders(w, r):
	case s.handleEnvironments(w, r):
	case s.handleEnvironmentTest(w, r):
	case s.handleQuery(w, r):
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *Server) authorize(r *http.Request) bool {
	if s.bearerToken == "" {
		return true
	}

	const prefix = "Bearer "
	authz := r.Header.Get("Authorization")

	if !strings.HasPrefix(authz, prefix) {
		return false
	}

	token := strings.TrimSpace(authz[len(prefix):])
	return token == s.bearerToken
}

// ListenAndServe starts the HTTP server and shuts it down gracefully when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}

	serve := s.serve
	if serve == nil {
		serve = func(srv *http.Server) error { return srv.ListenAndServe() }
	}
	serveTLS := s.serveTLS
	if serveTLS == nil {
		serveTLS = func(srv *http.Server, cert, key string) error { return srv.ListenAndServeTLS(cert, key) }
	}

	run := serve
	// Enable TLS when both cert and key are provided.
	if s.tlsCertFile != "" || s.tlsKeyFile != "" {
		if s.tlsCertFile == "" || s.tlsKeyFile == "" {
			return fmt.Errorf("TLS requires both cert and key to be configured")
		}
		run = func(srv *http.Server) error { return serveTLS(srv, s.tlsCertFile, s.tlsKeyFile) }
	}

	errCh := make(chan error, 1)
	go func() { errCh <- run(srv) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log().Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func requestIDFromRequest(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "X-Amzn-Trace-Id", "X-Correlation-ID", "X-Trace-ID"} {
		if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
