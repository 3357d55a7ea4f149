package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior:
// a missing API key must be caught before any network call is made.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Ledger RPC configuration
	SolanaRPCURL string
	HeliusAPIKey string

	// Enhanced transactions API configuration
	EnhancedAPIURL string

	// Fetch tuning
	FetchConcurrency  int
	SignaturePageSize int
	TxBatchSize       int

	// Pricing configuration
	BirdeyeAPIKey      string // optional; the Birdeye provider is skipped without it
	PriceProviderOrder string
	MinPoolTVLUSD      float64
	PoolRegistry       string // "mint:pool,mint:pool" pairs for on-chain AMM pricing

	// Cache configuration
	RedisURL string
	CacheTTL time.Duration

	// Event bus configuration (optional)
	NATSURL string
}

// Default values for tunables. These are safe for public RPC endpoints;
// premium endpoints can raise the fetch concurrency via env.
const (
	DefaultFetchConcurrency  = 10
	DefaultSignaturePageSize = 1000
	DefaultTxBatchSize       = 100
	DefaultMinPoolTVLUSD     = 5000.0
	DefaultEnhancedAPIURL    = "https://api.helius.xyz"
	DefaultProviderOrder     = "birdeye,jupiter,dexscreener"
)

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Ledger RPC configuration. The API key is the only configuration with no
	// safe default: without it every upstream call fails with a 401, so
	// refuse to start at all.
	cfg.HeliusAPIKey = os.Getenv("HELIUS_API_KEY")
	if cfg.HeliusAPIKey == "" {
		errs = append(errs, fmt.Errorf("HELIUS_API_KEY is required"))
	}

	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://mainnet.helius-rpc.com")
	cfg.EnhancedAPIURL = getEnvOrDefault("ENHANCED_API_URL", DefaultEnhancedAPIURL)

	// Fetch tuning
	var err error
	cfg.FetchConcurrency, err = parseInt("FETCH_CONCURRENCY", DefaultFetchConcurrency)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SignaturePageSize, err = parseInt("SIGNATURE_PAGE_SIZE", DefaultSignaturePageSize)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TxBatchSize, err = parseInt("TX_BATCH_SIZE", DefaultTxBatchSize)
	if err != nil {
		errs = append(errs, err)
	}

	// Pricing configuration
	cfg.BirdeyeAPIKey = os.Getenv("BIRDEYE_API_KEY")
	cfg.PriceProviderOrder = getEnvOrDefault("PRICE_PROVIDER_ORDER", DefaultProviderOrder)
	cfg.MinPoolTVLUSD, err = parseFloat("MIN_POOL_TVL_USD", DefaultMinPoolTVLUSD)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.PoolRegistry = os.Getenv("POOL_REGISTRY")

	// Cache configuration. Redis is optional: without it the price cache runs
	// on the in-process tier only.
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.CacheTTL, err = parseDuration("CACHE_TTL", "720h")
	if err != nil {
		errs = append(errs, err)
	}

	// Event bus configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	if verr := cfg.Validate(); verr != nil {
		errs = append(errs, verr)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks the tunable ranges. This is useful for testing
// configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be at least 1"))
	}
	if c.SignaturePageSize < 1 {
		errs = append(errs, fmt.Errorf("SIGNATURE_PAGE_SIZE must be at least 1"))
	}
	if c.TxBatchSize < 1 || c.TxBatchSize > 100 {
		errs = append(errs, fmt.Errorf("TX_BATCH_SIZE must be in [1, 100]"))
	}
	if c.MinPoolTVLUSD < 0 {
		errs = append(errs, fmt.Errorf("MIN_POOL_TVL_USD cannot be negative"))
	}
	if c.CacheTTL < time.Minute {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be at least 1 minute"))
	}
	if len(c.ProviderOrder()) == 0 {
		errs = append(errs, fmt.Errorf("PRICE_PROVIDER_ORDER must name at least one provider"))
	}
	if _, err := c.PoolRegistryPairs(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}
	return nil
}

// ProviderOrder returns the configured off-chain provider order as a slice
// of lower-case provider names.
func (c *Config) ProviderOrder() []string {
	parts := strings.Split(c.PriceProviderOrder, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PoolRegistryPairs parses POOL_REGISTRY into mint to pool-account pairs.
// The format is comma-separated "mint:pool" entries; an empty value yields
// an empty map. Pool address validity is checked at registration, not here.
func (c *Config) PoolRegistryPairs() (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(c.PoolRegistry) == "" {
		return out, nil
	}
	for _, entry := range strings.Split(c.PoolRegistry, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		mint, pool, ok := strings.Cut(entry, ":")
		mint, pool = strings.TrimSpace(mint), strings.TrimSpace(pool)
		if !ok || mint == "" || pool == "" {
			return nil, fmt.Errorf("POOL_REGISTRY: entry %q is not mint:pool", entry)
		}
		out[mint] = pool
	}
	return out, nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
