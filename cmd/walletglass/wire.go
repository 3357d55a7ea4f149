package main

import (
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/walletglass/walletglass/service/cache"
	"github.com/walletglass/walletglass/service/config"
	"github.com/walletglass/walletglass/service/enhanced"
	"github.com/walletglass/walletglass/service/ledger"
	"github.com/walletglass/walletglass/service/marketcap"
	"github.com/walletglass/walletglass/service/pipeline"
	"github.com/walletglass/walletglass/service/price"
)

// cliLogger keeps stdout clean for command output; only errors reach stderr.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// buildCascade assembles the price cascade and cache from config.
func buildCascade(cfg *config.Config, ledgerClient *ledger.Client, logger *slog.Logger) (*price.Cascade, *cache.Tiered) {
	birdeye := price.NewBirdeyeProvider(cfg.BirdeyeAPIKey, ledgerClient)
	byName := map[string]price.Provider{
		"birdeye":     birdeye,
		"jupiter":     price.NewJupiterProvider(ledgerClient),
		"dexscreener": price.NewDexScreenerProvider(),
	}
	poolRegistry := price.NewPoolRegistry()
	if pools, err := cfg.PoolRegistryPairs(); err == nil {
		for mint, pool := range pools {
			if rerr := poolRegistry.Register(mint, pool); rerr != nil {
				logger.Error("invalid pool registry entry", "mint", mint, "error", rerr)
			}
		}
	}
	amm := price.NewAMMProvider(ledgerClient, poolRegistry, birdeye, cfg.MinPoolTVLUSD, logger)
	providers := append([]price.Provider{amm}, price.OrderProviders(cfg.ProviderOrder(), byName)...)
	cascade := price.NewCascade(providers, nil, logger)

	var durable cache.Durable
	if cfg.RedisURL != "" {
		if opts, err := redis.ParseURL(cfg.RedisURL); err == nil {
			durable = cache.NewRedisStore(redis.NewClient(opts), cfg.CacheTTL)
		}
	}
	return cascade, cache.NewTiered(1000, cfg.CacheTTL, durable, nil, logger)
}

// buildPipeline wires a full analysis pipeline from config.
func buildPipeline(cfg *config.Config, logger *slog.Logger) *pipeline.Pipeline {
	ledgerClient := ledger.NewClient(ledger.NewRPCClient(cfg.SolanaRPCURL), cfg.SignaturePageSize, nil, logger)
	limiter := enhanced.NewLimiter(cfg.FetchConcurrency)
	fetcher := enhanced.NewFetcher(
		enhanced.NewClient(cfg.HeliusAPIKey, cfg.EnhancedAPIURL),
		limiter, cfg.TxBatchSize, nil, logger,
	)
	cascade, priceCache := buildCascade(cfg, ledgerClient, logger)
	return pipeline.New(ledgerClient, fetcher, limiter, cascade, priceCache, nil, nil, logger)
}

// buildMarketCaps wires the market-cap service from config.
func buildMarketCaps(cfg *config.Config, logger *slog.Logger) *marketcap.Service {
	ledgerClient := ledger.NewClient(ledger.NewRPCClient(cfg.SolanaRPCURL), cfg.SignaturePageSize, nil, logger)
	cascade, priceCache := buildCascade(cfg, ledgerClient, logger)
	return marketcap.NewService(cascade, priceCache, logger)
}
