package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/origin-gov/governance-listener/internal/common"
	"github.com/origin-gov/governance-listener/internal/config"
	"github.com/origin-gov/governance-listener/internal/decoder"
	logging "github.com/origin-gov/governance-listener/internal/logger"
	"github.com/origin-gov/governance-listener/internal/metrics"
	"github.com/origin-gov/governance-listener/internal/poller"
	"github.com/origin-gov/governance-listener/internal/recompute"
	"github.com/origin-gov/governance-listener/internal/reconcile"
	"github.com/origin-gov/governance-listener/internal/registry"
	"github.com/origin-gov/governance-listener/internal/rpc"
	"github.com/origin-gov/governance-listener/internal/store"
	"github.com/origin-gov/governance-listener/internal/store/migrations"
	"github.com/origin-gov/governance-listener/pkg/api"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "governance-listener",
		Short:        "Indexes governance and staking events from an EVM chain into SQLite",
		RunE:         runListener,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runListener(cmd *cobra.Command, args []string) error {
	// configuration errors are fatal here, before anything starts
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}

	rootLogger, err := logging.NewLogger(cfg.Logging.DefaultLevel, cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer rootLogger.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootLogger.Infof("starting governance listener (network %s)", cfg.Network)

	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s, err := store.New(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close() //nolint:errcheck

	network, err := cfg.ActiveNetwork()
	if err != nil {
		return err
	}

	reg, err := registry.New(network)
	if err != nil {
		return fmt.Errorf("failed to build contract registry: %w", err)
	}

	ethClient, err := rpc.NewClient(ctx, network.RPCURL, cfg.Listener.Retry, cfg.Listener.RequestTimeout.Duration)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", network.RPCURL, err)
	}
	defer ethClient.Close()

	componentLogger := func(component string) *logging.Logger {
		return logging.NewComponentLoggerFromConfig(component, &cfg.Logging)
	}

	dec := decoder.New(reg, componentLogger(common.ComponentDecoder), cfg.Listener.IgnoreUnknownEvents)
	engine := reconcile.New(s, ethClient, reg, componentLogger(common.ComponentReconcile))
	p := poller.New(cfg.Listener, ethClient, reg, dec, engine, s, componentLogger(common.ComponentPoller))
	refresh := recompute.New(s, ethClient, reg, componentLogger(common.ComponentRecompute))

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	var apiServer *api.Server
	if cfg.API != nil && cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, s, componentLogger(common.ComponentAPI))
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.Run(groupCtx) })
	group.Go(func() error { return refresh.Run(groupCtx) })

	runErr := group.Wait()

	rootLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			rootLogger.Errorf("API server shutdown: %v", err)
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			rootLogger.Errorf("metrics server shutdown: %v", err)
		}
	}

	return runErr
}
