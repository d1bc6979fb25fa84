package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/finreport/internal/analysis"
	"github.com/aristath/finreport/internal/config"
	"github.com/aristath/finreport/internal/domain"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		portfoliosFile string
		save           bool
		compact        bool
		summary        bool
	)

	cmd := &cobra.Command{
		Use:   "run PORTFOLIO",
		Short: "Analyse a portfolio and print the report as JSON",
		Long: `Run the full analysis of one configured portfolio and write the report
to stdout. Data-quality problems are listed in the report's warnings.
--summary prints a short human-readable table instead of JSON.

Example:
  finreport run growth --save > growth.json
  finreport run growth --summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			container, cfg, log, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer container.Close()

			if portfoliosFile == "" {
				portfoliosFile = cfg.PortfoliosFile
			}
			portfolios, err := config.LoadPortfolios(portfoliosFile)
			if err != nil {
				return err
			}
			pcfg, ok := config.FindPortfolio(portfolios, args[0])
			if !ok {
				return fmt.Errorf("portfolio %q not found in %s", args[0], portfoliosFile)
			}

			report, err := container.Engine.Run(ctx, *pcfg)
			if err != nil {
				return err
			}

			if save {
				if err := container.ReportsRepo.Save(ctx, report); err != nil {
					return err
				}
				log.Info().Str("run_id", report.RunID).Msg("Report saved")
			}

			if summary {
				return printSummary(cmd.OutOrStdout(), report)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&portfoliosFile, "portfolios", "f", "", "portfolios JSON file (default $PORTFOLIOS_FILE)")
	cmd.Flags().BoolVar(&save, "save", false, "store the report in reports.db")
	cmd.Flags().BoolVar(&compact, "compact", false, "print JSON without indentation")
	cmd.Flags().BoolVar(&summary, "summary", false, "print a human-readable summary instead of JSON")

	return cmd
}

func printSummary(out io.Writer, r *analysis.Report) error {
	money := func(v float64) string { return domain.FormatAmount(v, r.ReportingCurrency) }

	fmt.Fprintf(out, "%s (%s) %s to %s\n\n", r.Portfolio, r.ReportingCurrency,
		r.PeriodStart.Format(domain.DateLayout), r.PeriodEnd.Format(domain.DateLayout))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "CODE\tQUANTITY\tCOST BASIS\tMARKET VALUE\tWEIGHT\t")
	for _, p := range r.Current.Positions {
		fmt.Fprintf(w, "%s\t%g\t%s\t%s\t%.1f%%\t\n",
			p.Code, p.Quantity, money(p.CostBasis), money(p.MarketValue), p.Weight*100)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	t := r.Current.Totals
	fmt.Fprintf(out, "\nMarket value   %s\n", money(t.MarketValue))
	fmt.Fprintf(out, "Unrealized     %s (%.2f%%)\n", money(t.UnrealizedGain), t.UnrealizedReturnPct)
	fmt.Fprintf(out, "Realized       %s\n", money(t.RealizedGain))
	fmt.Fprintf(out, "Dividends      %s\n", money(t.Dividends))
	fmt.Fprintf(out, "Fees           %s\n", money(t.Fees))
	fmt.Fprintf(out, "Total gain     %s\n", money(t.TotalGain))

	if len(r.OptimalAllocation) > 0 {
		codes := make([]string, 0, len(r.OptimalAllocation))
		for code := range r.OptimalAllocation {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		fmt.Fprint(out, "\nMax-Sharpe allocation:")
		for _, code := range codes {
			fmt.Fprintf(out, " %s %.1f%%", code, r.OptimalAllocation[code]*100)
		}
		fmt.Fprintln(out)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(out, "\n%d warnings:\n", len(r.Warnings))
		for _, warning := range r.Warnings {
			fmt.Fprintf(out, "  %s\n", warning)
		}
	}
	return nil
}
