package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldbell/dex/liquidator/internal/config"
	"github.com/coldbell/dex/liquidator/internal/journal"
	"github.com/coldbell/dex/liquidator/internal/liquidator"
	"github.com/coldbell/dex/liquidator/internal/logging"
	"github.com/coldbell/dex/liquidator/internal/status"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cmd := &cobra.Command{
		Use:           "liquidator",
		Short:         "Liquidates under-collateralized clearing house users and cranks resting orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return run(c, bootstrapLogger)
		},
	}
	addFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		bootstrapLogger.Error("liquidator exited with error", "err", err)
		os.Exit(1)
	}
}

func run(c *cobra.Command, bootstrapLogger *slog.Logger) error {
	overrides, err := parseFlags(c.Flags())
	if err != nil {
		return err
	}

	cfg, err := config.LoadLiquidatorConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Apply(overrides); err != nil {
		return err
	}

	logger, closeLogger, err := logging.New("liquidator", cfg.Log)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := liquidator.NewMetrics()
	opts := []liquidator.Option{liquidator.WithMetrics(metrics)}

	if cfg.DBDSN != "" {
		store, err := journal.NewStore(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close journal", "err", err)
			}
		}()
		opts = append(opts, liquidator.WithJournal(store))
	}

	svc, err := liquidator.New(cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("initialize liquidator: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if cfg.StatusListenAddr != "" {
		server := status.New(cfg.StatusListenAddr, svc, metrics.Registry(), logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}
	return g.Wait()
}
