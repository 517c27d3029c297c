package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"vigil/internal/store"
)

// Row is one identity's aggregate over the reporting window.
type Row struct {
	Identity store.Identity

	// Count is how many times the identity went unavailable.
	Count int64
	// TotalSeconds is the summed unavailability over the window.
	TotalSeconds int64
	// DailyAverageSeconds is TotalSeconds spread over the weekday
	// session days in the window.
	DailyAverageSeconds int64
	// Percent is unavailability as a share of total session time.
	Percent float64
	// OnceEveryDays is how many weekday session days pass, on average,
	// between the identity's unavailability spans.
	OnceEveryDays float64
}

// Report aggregates unavailability across the sessions of a window.
type Report struct {
	Cutoff              time.Time
	FirstDay            time.Time
	LastDay             time.Time
	WeekdaySessionDays  int
	TotalSessionSeconds int64
	Rows                []Row
}

// Build aggregates the last windowDays of sessions into a report. Rows
// are ordered by unavailability percentage, highest first.
func Build(ctx context.Context, st *store.Store, now time.Time, windowDays int) (*Report, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("report window must be positive, got %d days", windowDays)
	}
	cutoff := now.AddDate(0, 0, -windowDays)

	// Reporting never surfaces partially written rows.
	if _, err := st.PurgeCorrupt(ctx); err != nil {
		return nil, err
	}

	days, err := st.SessionDays(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no sessions in the last %d days", windowDays)
	}

	weekdays := 0
	for _, day := range days {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			weekdays++
		}
	}
	if weekdays == 0 {
		weekdays = len(days)
	}

	totalSessionSeconds, err := st.TotalSessionSeconds(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	aggregates, err := st.IntervalAggregates(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(aggregates))
	for _, agg := range aggregates {
		row := Row{
			Identity:            agg.Identity,
			Count:               agg.Count,
			TotalSeconds:        agg.TotalSeconds,
			DailyAverageSeconds: agg.TotalSeconds / int64(weekdays),
		}
		if totalSessionSeconds > 0 {
			row.Percent = float64(agg.TotalSeconds) / float64(totalSessionSeconds) * 100
		}
		if agg.Count > 0 {
			row.OnceEveryDays = float64(weekdays) / float64(agg.Count)
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Percent != rows[j].Percent {
			return rows[i].Percent > rows[j].Percent
		}
		return rows[i].Identity.DisplayName < rows[j].Identity.DisplayName
	})

	return &Report{
		Cutoff:              cutoff,
		FirstDay:            days[0],
		LastDay:             days[len(days)-1],
		WeekdaySessionDays:  weekdays,
		TotalSessionSeconds: totalSessionSeconds,
		Rows:                rows,
	}, nil
}

// FileName returns the report's canonical file name, derived from the
// first and last session day it covers.
func (r *Report) FileName() string {
	return fmt.Sprintf("%s-%s_presence_report.csv",
		r.FirstDay.Format("2006-01-02"),
		r.LastDay.Format("2006-01-02"))
}

// WriteCSV writes the report into dir and returns the file's path.
func (r *Report) WriteCSV(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(dir, r.FileName())

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{
		"Name", "Title", "Times Unavailable", "Total Unavailable",
		"Daily Average", "% of Session Time", "Once Every (days)",
	}
	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("write report header: %w", err)
	}
	for _, row := range r.Rows {
		record := []string{
			row.Identity.DisplayName,
			row.Identity.Title,
			fmt.Sprintf("%d", row.Count),
			FormatSeconds(row.TotalSeconds),
			FormatSeconds(row.DailyAverageSeconds),
			fmt.Sprintf("%.1f%%", row.Percent),
			fmt.Sprintf("%.1f", row.OnceEveryDays),
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write report row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush report: %w", err)
	}
	return path, nil
}

// FormatSeconds renders a second count as "H:MM:SS".
func FormatSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
