package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"node-rewards-ingester/internal/storage"
)

// Show prints recent ledger runs, or recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return printAlerts(alerts)
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountRuns(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "showing %d of %d runs\n", len(runs), total)
	return printRuns(runs)
}

func printRuns(runs []storage.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tTrigger\tOutcome\tSamples\tProviders\tDuration\tFinished (UTC)\tError")

	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			run.Day,
			run.Trigger,
			run.Outcome,
			run.Samples,
			run.Providers,
			run.Duration().Round(time.Millisecond),
			run.FinishedAt.UTC().Format(time.RFC3339),
			sanitizeInline(run.Error.ValueOrZero()),
		)
	}

	return writer.Flush()
}

func printAlerts(alerts []storage.AlertRecord) error {
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tOutcome\tChannels\tCreated (UTC)\tError")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			alert.Day,
			alert.Outcome,
			strings.Join(alert.Channels, ","),
			alert.CreatedAt.UTC().Format(time.RFC3339),
			sanitizeInline(alert.Error.ValueOrZero()),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
