package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Probe the server's /health endpoint",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			start := time.Now()
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()
			elapsed := time.Since(start)

			body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			// The endpoint answers a bare "OK"; anything else means a proxy
			// or a different service is on the other end.
			if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "OK" {
				return fmt.Errorf("server unhealthy: status %d, body %q", resp.StatusCode, body)
			}

			fmt.Printf("%s healthy (%s)\n", serverURL, elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("walletglass %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
