package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/finreport/internal/domain"
	"github.com/aristath/finreport/internal/events"
	"github.com/aristath/finreport/internal/modules/historical"
	"github.com/aristath/finreport/internal/modules/ledger"
)

func newImportLedgerCmd(a *app) *cobra.Command {
	var (
		portfolio string
		currency  string
		tz        string
	)

	cmd := &cobra.Command{
		Use:   "import-ledger FILE",
		Short: "Replace a portfolio's ledger with a CSV export",
		Long: `Parse a ledger CSV export and replace the stored records of the portfolio.

Every row is validated first; a file with any invalid row is rejected as a
whole and the stored ledger is left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("bad --tz: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := ledger.ParseCSV(f, ledger.ParseOptions{
				ReportingCurrency: strings.ToUpper(currency),
				Location:          loc,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			container, _, log, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer container.Close()

			if err := container.LedgerRepo.ReplaceAll(ctx, portfolio, records); err != nil {
				return err
			}
			container.EventManager.EmitTyped("ledger", &events.LedgerImportedData{
				Portfolio: portfolio,
				Records:   len(records),
			})
			log.Info().Str("portfolio", portfolio).Int("records", len(records)).Msg("Ledger imported")

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s\n", len(records), portfolio)
			return nil
		},
	}

	cmd.Flags().StringVarP(&portfolio, "portfolio", "p", "", "portfolio name (required)")
	cmd.Flags().StringVar(&currency, "currency", "", "reporting currency; its rows may omit the exchange rate")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "time zone of the Date/Time columns")
	_ = cmd.MarkFlagRequired("portfolio")

	return cmd
}

func newImportPricesCmd(a *app) *cobra.Command {
	var symbol string

	cmd := &cobra.Command{
		Use:   "import-prices FILE",
		Short: "Upsert a daily close-price series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := readSeries(args[0], symbol)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			container, _, _, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer container.Close()

			if err := container.HistoryRepo.StorePrices(ctx, symbol, series.Points); err != nil {
				return err
			}
			container.EventManager.EmitTyped("historical", &events.HistoryImportedData{
				Series: symbol,
				Kind:   "price",
				Points: len(series.Points),
			})

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d prices for %s\n", len(series.Points), symbol)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "ticker the series belongs to (required)")
	_ = cmd.MarkFlagRequired("symbol")

	return cmd
}

func newImportRatesCmd(a *app) *cobra.Command {
	var base, quote string

	cmd := &cobra.Command{
		Use:   "import-rates FILE",
		Short: "Upsert a daily exchange-rate series (units of quote per one base)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, quote := strings.ToUpper(base), strings.ToUpper(quote)
			if !domain.IsKnownCurrency(base) || !domain.IsKnownCurrency(quote) {
				return fmt.Errorf("unknown currency pair %s/%s", base, quote)
			}
			if base == quote {
				return fmt.Errorf("base and quote must differ")
			}

			series, err := readSeries(args[0], base+quote)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			container, _, _, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer container.Close()

			if err := container.HistoryRepo.StoreRates(ctx, base, quote, series.Points); err != nil {
				return err
			}
			container.EventManager.EmitTyped("historical", &events.HistoryImportedData{
				Series: base + quote,
				Kind:   "rate",
				Points: len(series.Points),
			})

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rates for %s%s\n", len(series.Points), base, quote)
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "base currency (required)")
	cmd.Flags().StringVar(&quote, "quote", "", "quote currency (required)")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("quote")

	return cmd
}

func readSeries(path, id string) (domain.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Series{}, err
	}
	defer f.Close()
	return historical.ParseSeriesCSV(f, id)
}
