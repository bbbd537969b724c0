package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/depgate-dev/depgate/internal/application"
	"github.com/depgate-dev/depgate/internal/domain/heuristics"
	"github.com/depgate-dev/depgate/internal/orchestrator"
	"github.com/depgate-dev/depgate/internal/proxy/cache"
	"github.com/depgate-dev/depgate/internal/proxy/evaluator"
	"github.com/depgate-dev/depgate/internal/proxy/server"
	"github.com/depgate-dev/depgate/internal/proxy/upstream"
)

// ProxyOptions holds the proxy subcommand's flags.
type ProxyOptions struct {
	host               string
	port               int
	decisionMode       string
	cacheTTLSeconds    int
	responseCacheTTLMS int
	timeoutSeconds     int
	allowNonLoopback   bool
	preset             string
	minReleaseAge      int
}

func init() {
	rootCmd.AddCommand(newProxyCmd())
}

func newProxyCmd() *cobra.Command {
	opts := &ProxyOptions{
		host:               "127.0.0.1",
		decisionMode:       string(evaluator.ModeBlock),
		cacheTTLSeconds:    int(cache.DefaultDecisionTTL / time.Second),
		responseCacheTTLMS: int(cache.DefaultResponseTTL / time.Millisecond),
		timeoutSeconds:     30,
		preset:             orchestrator.PresetDefault,
	}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the package-manager proxy that gates installs against policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProxyAction(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", opts.host, "listen host (non-loopback requires --allow-non-loopback)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (0 = ephemeral)")
	cmd.Flags().BoolVar(&opts.allowNonLoopback, "allow-non-loopback", false, "allow binding a non-loopback host")
	cmd.Flags().StringVar(&opts.decisionMode, "decision-mode", opts.decisionMode, "block|warn|audit")
	cmd.Flags().IntVar(&opts.cacheTTLSeconds, "cache-ttl", opts.cacheTTLSeconds, "decision cache TTL in seconds")
	cmd.Flags().IntVar(&opts.responseCacheTTLMS, "response-cache-ttl", opts.responseCacheTTLMS, "response cache TTL in milliseconds")
	cmd.Flags().IntVar(&opts.timeoutSeconds, "timeout", opts.timeoutSeconds, "per-request upstream timeout in seconds")
	cmd.Flags().StringVar(&opts.preset, "preset", opts.preset, "built-in policy preset: default|supply-chain|supply-chain-strict")
	cmd.Flags().IntVar(&opts.minReleaseAge, "min-release-age-days", 0, "overrides the supply-chain preset's minimum release age (<=0 uses the default)")

	return cmd
}

func runProxyAction(cmd *cobra.Command, opts *ProxyOptions) error {
	c, err := application.New(cmd.Context(), application.Options{
		ConfigPath:        cfgFile,
		Overrides:         setFlags,
		Preset:            opts.preset,
		MinReleaseAgeDays: opts.minReleaseAge,
		Redactor:          stderrRedactor,
	})
	if err != nil {
		return err
	}

	srv, shutdown, err := buildProxyServer(c, opts)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("proxy listening on %s\n", srv.Addr())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildProxyServer wires the evaluator, decision/response caches, and
// upstream client into a server.Server ready to Start. Extracted so
// cmd/run.go can build the same ephemeral proxy for child wrapping.
func buildProxyServer(c *application.Container, opts *ProxyOptions) (*server.Server, func(), error) {
	decisions := cache.NewDecisionCache(time.Duration(opts.cacheTTLSeconds)*time.Second, 0)
	responses := cache.NewResponseCache(time.Duration(opts.responseCacheTTLMS)*time.Millisecond, 0, 0)

	eval := &evaluator.Evaluator{
		Registry:   c.Registry,
		Cache:      decisions,
		PolicyCfg:  c.PolicyCfg,
		Mode:       evaluator.Mode(opts.decisionMode),
		Thresholds: heuristics.DefaultThresholds(),
	}

	up := upstream.New(upstream.Config{
		Timeout: time.Duration(opts.timeoutSeconds) * time.Second,
	})

	srv := server.New(server.Config{
		Host:             opts.host,
		Port:             opts.port,
		AllowNonLoopback: opts.allowNonLoopback,
		DecisionMode:     evaluator.Mode(opts.decisionMode),
	}, eval, up, decisions, responses)

	return srv, func() {}, nil
}
