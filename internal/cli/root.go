// Package cli provides the command-line interface for the alerting engine.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"market-sentinel/internal/config"
	"market-sentinel/internal/engine"
	"market-sentinel/internal/market"
	"market-sentinel/internal/notify"
	"market-sentinel/internal/resilience"
	"market-sentinel/internal/rules"
	"market-sentinel/internal/signal"
	"market-sentinel/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Store       *store.SQLiteStore
	Source      market.Source
	Coordinator *engine.Coordinator
	Probe       *resilience.Probe
}

// NewApp wires the engine from configuration.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	source := market.NewSQLiteSource(st.DB())
	aggregator := signal.NewAggregator(source, cfg.Signal)
	evaluator := rules.NewEvaluator(st, logger)
	dispatcher := notify.NewDispatcher(notify.Channels(cfg.Notifications), st, cfg.Notifications, logger)

	coordinator := engine.NewCoordinator(cfg, aggregator, evaluator, dispatcher, logger)
	probe := resilience.NewProbe(cfg.Engine.CycleDeadline, coordinator.Lease().Status)
	coordinator.AttachProbe(probe)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Source:      source,
		Coordinator: coordinator,
		Probe:       probe,
	}, nil
}

// Close releases the application resources.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Market Sentinel - signal aggregation and alerting engine",
		Long: `Market Sentinel turns ingested market prices and news sentiment into
composite trading signals, evaluates configured alert rules with
cooldown-based deduplication, and dispatches notifications over the
configured channels.

The engine is designed to be triggered by an external scheduler ('sentinel
run') or to serve triggers and queries over HTTP ('sentinel serve').`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(cfg, logger),
		newServeCmd(cfg, logger),
		newAlertsCmd(cfg),
		newRulesCmd(cfg),
		newHealthCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sentinel %s\n", Version)
		},
	}
}
