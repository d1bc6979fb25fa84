package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/di"
	"github.com/aristath/finreport/pkg/logger"
)

// app carries the global flags shared by every subcommand
type app struct {
	dataDir  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "finreport",
		Short: "Portfolio analytics from transaction ledgers",
		Long: `finreport aggregates a transaction ledger into positions, aligns prices
and exchange rates to a common calendar, computes risk statistics and
simulates the efficient frontier.

Typical flow:
  finreport import-ledger --portfolio growth ledger.csv
  finreport import-prices --symbol AAPL aapl.csv
  finreport import-rates --base USD --quote EUR usdeur.csv
  finreport run growth`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default $FINREPORT_DATA_DIR or ./data)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newImportLedgerCmd(a),
		newImportPricesCmd(a),
		newImportRatesCmd(a),
		newRunCmd(a),
		newVersionCmd(),
	)

	return cmd
}

// open loads configuration and wires the databases, repositories and engine.
// Scheduled jobs are not created. The caller closes the container.
func (a *app) open(ctx context.Context) (*di.Container, *config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	if a.dataDir != "" {
		abs, err := filepath.Abs(a.dataDir)
		if err != nil {
			return nil, nil, zerolog.Nop(), fmt.Errorf("failed to resolve data directory: %w", err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, nil, zerolog.Nop(), fmt.Errorf("failed to create data directory: %w", err)
		}
		cfg.DataDir = abs
		cfg.PortfoliosFile = filepath.Join(abs, "portfolios.json")
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	// Logs go to stderr so report JSON on stdout stays clean
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	container, err := di.InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, log, err
	}
	di.InitializeRepositories(container, log)
	if err := di.InitializeServices(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, nil, log, err
	}
	return container, cfg, log, nil
}
