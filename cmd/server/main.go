package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/walletglass/walletglass/service/cache"
	"github.com/walletglass/walletglass/service/config"
	"github.com/walletglass/walletglass/service/enhanced"
	"github.com/walletglass/walletglass/service/ledger"
	"github.com/walletglass/walletglass/service/marketcap"
	"github.com/walletglass/walletglass/service/metrics"
	natspkg "github.com/walletglass/walletglass/service/nats"
	"github.com/walletglass/walletglass/service/pipeline"
	"github.com/walletglass/walletglass/service/price"
	"github.com/walletglass/walletglass/service/server"
)

// priceCacheCapacity bounds the hot in-process price cache.
const priceCacheCapacity = 1000

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	// Ledger RPC layer: signature walks, supplies, pool account reads.
	ledgerClient := ledger.NewClient(ledger.NewRPCClient(cfg.SolanaRPCURL), cfg.SignaturePageSize, m, logger)
	logger.Info("initialized ledger RPC client", "url", cfg.SolanaRPCURL)

	// Enhanced transaction fetch with adaptive concurrency.
	limiter := enhanced.NewLimiter(cfg.FetchConcurrency)
	fetcher := enhanced.NewFetcher(
		enhanced.NewClient(cfg.HeliusAPIKey, cfg.EnhancedAPIURL),
		limiter, cfg.TxBatchSize, m, logger,
	)

	// Price cascade: on-chain pools first, then the configured aggregators.
	// Known pools come from POOL_REGISTRY; unregistered mints skip straight
	// to the aggregators.
	poolRegistry := price.NewPoolRegistry()
	pools, err := cfg.PoolRegistryPairs()
	if err != nil {
		logger.Error("invalid pool registry", "error", err)
		os.Exit(1)
	}
	for mint, pool := range pools {
		if err := poolRegistry.Register(mint, pool); err != nil {
			logger.Error("invalid pool registry entry", "mint", mint, "error", err)
			os.Exit(1)
		}
	}
	if len(pools) > 0 {
		logger.Info("registered AMM pools", "count", len(pools))
	}
	birdeye := price.NewBirdeyeProvider(cfg.BirdeyeAPIKey, ledgerClient)
	byName := map[string]price.Provider{
		"birdeye":     birdeye,
		"jupiter":     price.NewJupiterProvider(ledgerClient),
		"dexscreener": price.NewDexScreenerProvider(),
	}
	amm := price.NewAMMProvider(ledgerClient, poolRegistry, birdeye, cfg.MinPoolTVLUSD, logger)
	providers := append([]price.Provider{amm}, price.OrderProviders(cfg.ProviderOrder(), byName)...)
	cascade := price.NewCascade(providers, m, logger)

	// Two-tier price cache; the durable tier is optional.
	var durable cache.Durable
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		store := cache.NewRedisStore(redis.NewClient(opts), cfg.CacheTTL)
		if err := store.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, running with in-process cache only", "error", err)
		} else {
			durable = store
			logger.Info("connected to redis")
		}
	}
	priceCache := cache.NewTiered(priceCacheCapacity, cfg.CacheTTL, durable, m, logger)

	// Optional trade event publishing.
	var publisher pipeline.Publisher
	if cfg.NATSURL != "" {
		np, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("NATS unavailable, trade events disabled", "error", err)
		} else {
			defer np.Close()
			publisher = natspkg.NewPipelineAdapter(np, m)
		}
	}

	pipe := pipeline.New(ledgerClient, fetcher, limiter, cascade, priceCache, publisher, m, logger)
	caps := marketcap.NewService(cascade, priceCache, logger)

	httpServer := server.New(cfg.ServerAddr, cfg, pipe, caps, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
