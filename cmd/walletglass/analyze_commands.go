package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/walletglass/walletglass/service/config"
	"github.com/walletglass/walletglass/service/pipeline"
	"github.com/walletglass/walletglass/service/trades"
)

// analyzeCommand runs a full wallet analysis and prints the result.
func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze a wallet's full trading history with P&L",
		ArgsUsage: "<wallet-address>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression trades must match (repeatable, all must be truthy)",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Print progress to stderr while fetching",
			},
		},
		Action: func(c *cli.Context) error {
			wallet := c.Args().First()
			if wallet == "" {
				return fmt.Errorf("wallet address is required")
			}

			filters, err := compileFilters(c.StringSlice("filter"))
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			logger := cliLogger()
			pipe := buildPipeline(cfg, logger)

			var onProgress func(pipeline.Progress)
			if c.Bool("progress") {
				onProgress = func(p pipeline.Progress) {
					if p.Total > 0 {
						fmt.Fprintf(os.Stderr, "\r%s: %d/%d", p.Phase, p.Done, p.Total)
					} else {
						fmt.Fprintf(os.Stderr, "\r%s: %d", p.Phase, p.Done)
					}
				}
			}

			res, err := pipe.Analyze(c.Context, wallet, onProgress)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}
			if c.Bool("progress") {
				fmt.Fprintln(os.Stderr)
			}

			if len(filters) > 0 {
				res.Trades = filterTrades(res.Trades, filters)
			}

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			printSummary(res)
			return nil
		},
	}
}

// compileFilters parses and compiles jq expressions.
func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return codes, nil
}

// filterTrades keeps trades for which every jq filter yields a truthy value.
func filterTrades(records []trades.Record, filters []*gojq.Code) []trades.Record {
	out := make([]trades.Record, 0, len(records))
	for _, rec := range records {
		if matchesAll(rec, filters) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesAll(rec trades.Record, filters []*gojq.Code) bool {
	// gojq operates on generic JSON values, so round-trip the record.
	raw, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy follows jq semantics: false and null are falsy, everything else
// is truthy.
func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

func printSummary(res *pipeline.Result) {
	fmt.Printf("Wallet:        %s\n", res.Wallet)
	fmt.Printf("Slots:         %d - %d\n", res.FromSlot, res.ToSlot)
	fmt.Printf("Trades:        %d (%d priced)\n", res.Summary.TotalTrades, res.Summary.PricedTrades)
	fmt.Printf("Realized P&L:  $%.2f\n", res.Summary.TotalPnLUSD)
	fmt.Printf("Win rate:      %.1f%%\n", res.Summary.WinRate*100)
	fmt.Printf("Elapsed:       %.1fs\n", res.ElapsedSeconds)

	if len(res.Positions) > 0 {
		fmt.Println("\nOpen positions:")
		for _, pos := range res.Positions {
			fmt.Printf("  %-12s balance=%.4f basis=$%.2f unrealized=$%.2f (%s)\n",
				pos.Symbol, pos.Balance, pos.CostBasisUSD, pos.UnrealizedPnLUSD, pos.Confidence)
		}
	}

	if len(res.Trades) > 0 {
		fmt.Println("\nRecent trades:")
		start := len(res.Trades) - 10
		if start < 0 {
			start = 0
		}
		for _, tr := range res.Trades[start:] {
			fmt.Printf("  %s %-4s %-12s $%.2f pnl=$%.2f %s\n",
				tr.Timestamp.Format("2006-01-02 15:04"), tr.Action, tr.Token, tr.ValueUSD, tr.PnLUSD, tr.DEX)
		}
	}
}
