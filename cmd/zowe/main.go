// Package main provides the entrypoint for the zowe CLI. The same binary
// runs one command and exits, or stays resident as the daemon when started
// with --daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"zowe.dev/go/zowe/internal/cli"
	"zowe.dev/go/zowe/internal/config"
	"zowe.dev/go/zowe/internal/daemon"
	"zowe.dev/go/zowe/internal/session"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version)
	cli.SetBuildInfo(commit, buildDate)

	decision, err := daemon.Decide(daemon.NewStartupParameters(os.Args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !decision.IsDaemon {
		slog.SetDefault(daemon.NewLogger(config.LoggingConfig{Level: "warn"}, nil, os.Stderr))
		if err := cli.Execute(); err != nil {
			if !cli.IsExitCode(err) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(cli.ExitCode(err))
		}
		return
	}

	if err := runDaemon(decision); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(decision daemon.ModeDecision) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	buffer := daemon.NewLogBuffer(daemon.LogBufferSize)
	logger := daemon.NewLogger(cfg.Logging, buffer, os.Stderr)
	slog.SetDefault(logger)

	engine := func(ctx context.Context, inv session.Invocation) int {
		return cli.Run(ctx, inv.Args, cli.IOStreams{In: inv.Stdin, Out: inv.Stdout, ErrOut: inv.Stderr})
	}

	lc, err := daemon.New(decision, daemon.Options{
		NewHandler: session.Factory(session.Options{
			Engine:         engine,
			Logger:         logger,
			RequestTimeout: cfg.Daemon.RequestTimeout(),
		}),
		Logger:    logger,
		LogBuffer: buffer,
		Console:   os.Stdout,
		Limiter: &daemon.ConnectionLimiterConfig{
			MaxConnections:    int32(cfg.Daemon.MaxConnections),
			ConnectionsPerSec: cfg.Daemon.ConnectionsPerSec,
			ConnectionBurst:   cfg.Daemon.ConnectionBurst,
		},
		Requests: requestLimits(cfg.Daemon),
	})
	if err != nil {
		return err
	}

	logger.Info("daemon starting", "address", decision.Address.Value, "owner", decision.Owner, "version", version)
	return lc.Run(context.Background())
}

func requestLimits(cfg config.DaemonConfig) *daemon.RequestLimitConfig {
	limits := daemon.DefaultRequestLimitConfig()
	limits.SessionRequestsPerSecond = cfg.RequestsPerSec
	limits.SessionBurst = cfg.RequestBurst
	return limits
}
