package di

import (
	"github.com/aristath/finreport/internal/modules/historical"
	"github.com/aristath/finreport/internal/modules/ledger"
	"github.com/aristath/finreport/internal/modules/reports"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the repositories on top of the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.LedgerRepo = ledger.NewRepository(container.LedgerDB.Conn(), log)
	container.HistoryRepo = historical.NewRepository(container.HistoryDB.Conn(), log)
	container.ReportsRepo = reports.NewRepository(container.ReportsDB.Conn(), log)
}
