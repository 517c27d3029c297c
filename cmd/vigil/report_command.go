package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/report"
	"vigil/internal/store"
)

func newReportCommand(cctx *commandContext) *cobra.Command {
	var windowDays int
	var noCSV bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate unavailability over recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withStore(func(cfg *config.Config, st *store.Store) error {
				days := windowDays
				if days <= 0 {
					days = cfg.Report.WindowDays
				}

				rep, err := report.Build(cmd.Context(), st, time.Now(), days)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Sessions from %s to %s (%d weekday session days, %s of session time)\n\n",
					rep.FirstDay.Format("2006-01-02"),
					rep.LastDay.Format("2006-01-02"),
					rep.WeekdaySessionDays,
					report.FormatSeconds(rep.TotalSessionSeconds))

				rows := make([][]string, 0, len(rep.Rows))
				for _, row := range rep.Rows {
					rows = append(rows, []string{
						row.Identity.DisplayName,
						row.Identity.Title,
						fmt.Sprintf("%d", row.Count),
						report.FormatSeconds(row.TotalSeconds),
						report.FormatSeconds(row.DailyAverageSeconds),
						fmt.Sprintf("%.1f%%", row.Percent),
						fmt.Sprintf("%.1f", row.OnceEveryDays),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Name", "Title", "Times", "Total", "Daily Avg", "% of Session", "Once Every (days)"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				if noCSV {
					return nil
				}
				path, err := rep.WriteCSV(cfg.Paths.ReportDir)
				if err != nil {
					return err
				}
				printStatus(out, statusSuccess, fmt.Sprintf("Report written to %s", path))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&windowDays, "days", 0, "Window in days (defaults to the configured report window)")
	cmd.Flags().BoolVar(&noCSV, "no-csv", false, "Print the table without writing the CSV file")
	return cmd
}
