// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens and migrates ledger.db, history.db and reports.db
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	stores, err := database.OpenStores(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open stores: %w", err)
	}

	for _, db := range stores.All() {
		log.Info().Str("database", db.Name()).Str("path", db.Path()).Msg("Database ready")
	}

	return &Container{
		LedgerDB:  stores.Ledger,
		HistoryDB: stores.History,
		ReportsDB: stores.Reports,
	}, nil
}
