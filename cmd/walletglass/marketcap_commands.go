package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/walletglass/walletglass/service/config"
	"github.com/walletglass/walletglass/service/marketcap"
	"github.com/walletglass/walletglass/service/price"
)

// marketCapCommand looks up current price and market cap for one or more mints.
func marketCapCommand() *cli.Command {
	return &cli.Command{
		Name:      "marketcap",
		Aliases:   []string{"mc"},
		Usage:     "Look up token price and market cap",
		ArgsUsage: "<mint> [mint...]",
		Action: func(c *cli.Context) error {
			mints := c.Args().Slice()
			if len(mints) == 0 {
				return fmt.Errorf("at least one mint address is required")
			}
			if len(mints) > marketcap.MaxBatchSize {
				return fmt.Errorf("too many mints: %d (max %d)", len(mints), marketcap.MaxBatchSize)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			svc := buildMarketCaps(cfg, cliLogger())

			results, err := svc.LookupBatch(c.Context, mints)
			if err != nil {
				return fmt.Errorf("lookup failed: %w", err)
			}

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			for _, mint := range mints {
				printMarketCap(mint, results[mint])
			}
			return nil
		},
	}
}

func printMarketCap(mint string, res *price.Result) {
	if res == nil || !res.Available() {
		fmt.Printf("%s: unavailable\n", mint)
		return
	}
	fmt.Printf("%s\n", mint)
	fmt.Printf("  price:      $%.6f\n", res.PriceUSD)
	if res.MarketCapUSD > 0 {
		fmt.Printf("  market cap: $%.0f\n", res.MarketCapUSD)
	}
	fmt.Printf("  source:     %s (%s)\n", res.Source, res.Confidence)
}
