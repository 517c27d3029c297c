package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/report"
	"vigil/internal/store"
)

func newTimelineCommand(cctx *commandContext) *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show per-session unavailability timelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withStore(func(cfg *config.Config, st *store.Store) error {
				days := windowDays
				if days <= 0 {
					days = cfg.Report.WindowDays
				}

				timelines, err := report.Timelines(cmd.Context(), st, time.Now(), days)
				if err != nil {
					return err
				}
				if len(timelines) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No sessions in the last %d days\n", days)
					return nil
				}

				out := cmd.OutOrStdout()
				for _, timeline := range timelines {
					session := timeline.Session
					endLabel := "open"
					if session.EndTime != nil {
						endLabel = session.EndTime.Local().Format("15:04")
					}
					fmt.Fprintf(out, "Session %d — %s %s to %s\n",
						session.ID,
						session.StartTime.Local().Format("2006-01-02"),
						session.StartTime.Local().Format("15:04"),
						endLabel)

					if len(timeline.Entries) == 0 {
						fmt.Fprintln(out, "  no unavailability recorded")
						fmt.Fprintln(out)
						continue
					}

					rows := make([][]string, 0, len(timeline.Entries))
					for _, entry := range timeline.Entries {
						rows = append(rows, []string{
							entry.Identity.DisplayName,
							entry.Start.Local().Format("15:04"),
							entry.End.Local().Format("15:04"),
							report.FormatSeconds(entry.DurationSeconds),
						})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Name", "From", "To", "Duration"},
						rows,
						[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
					))
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&windowDays, "days", 0, "Window in days (defaults to the configured report window)")
	return cmd
}
