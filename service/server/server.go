package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/walletglass/walletglass/service/config"
	"github.com/walletglass/walletglass/service/metrics"
	"github.com/walletglass/walletglass/service/pipeline"
	"github.com/walletglass/walletglass/service/price"
)

// Analyzer runs wallet analyses, in one shot or streamed.
type Analyzer interface {
	Analyze(ctx context.Context, wallet string, onProgress func(pipeline.Progress)) (*pipeline.Result, error)
	Stream(ctx context.Context, wallet string, lastEventID int64, emit func(pipeline.Event) error) error
}

// MarketCaps answers market-cap queries.
type MarketCaps interface {
	Lookup(ctx context.Context, mint string) *price.Result
	LookupBatch(ctx context.Context, mints []string) (map[string]*price.Result, error)
}

// Server represents the HTTP server for the wallet analysis service.
type Server struct {
	addr       string
	cfg        *config.Config
	analyzer   Analyzer
	marketCaps MarketCaps
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, analyzer Analyzer, marketCaps MarketCaps, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		cfg:        cfg,
		analyzer:   analyzer,
		marketCaps: marketCaps,
		metrics:    m,
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Analysis routes
	mux.Handle("GET /api/v1/wallets/{address}/trades", handleAnalyzeWallet(s.analyzer, s.metrics, s.logger))
	mux.Handle("GET /api/v1/stream/wallets/{address}", handleStreamAnalysis(s.analyzer, s.metrics, s.logger))

	// Market cap routes
	mux.Handle("GET /api/v1/marketcap/{mint}", handleGetMarketCap(s.marketCaps, s.logger))
	mux.Handle("POST /api/v1/marketcap/batch", handleBatchMarketCap(s.marketCaps, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Streamed analyses hold the response open well past any sane
		// write timeout, so the server leaves it unset and relies on
		// request contexts instead.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
