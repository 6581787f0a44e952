package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/storage"
)

// Export renders the run ledger as CSV and/or a PNG chart of samples and
// providers per day.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	days := a.Config.ResolveDays(opts.Days)
	if days <= 0 {
		return errors.New("export window is empty")
	}
	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = a.Config.Export.MaxDataPoints
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := day.Of(time.Now()).AddDays(1)
	from := to.AddDays(-days)

	runs, err := store.ListRunsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.Logger.Info().Stringer("from", from).Stringer("to", to).Msg("no runs found for export window")
		return nil
	}

	a.Logger.Info().Int("runs", len(runs)).Stringer("from", from).Msg("exporting runs")

	if opts.CSVPath != "" {
		if err := writeRunsCSV(opts.CSVPath, downsampleRuns(runs, maxPoints)); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		points := downsampleRuns(latestPushPerDay(runs), maxPoints)
		if len(points) < 2 {
			a.Logger.Warn().Int("days", len(points)).Msg("not enough pushed days to chart")
			return nil
		}
		if err := writeRunsPNG(opts.PNGPath, points); err != nil {
			return err
		}
	}

	return nil
}

// latestPushPerDay keeps the last successful push of each day. runs must be
// ordered by day, then finish time.
func latestPushPerDay(runs []storage.Run) []storage.Run {
	out := make([]storage.Run, 0, len(runs))
	for _, run := range runs {
		if run.Outcome != "pushed" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Day == run.Day {
			out[n-1] = run
			continue
		}
		out = append(out, run)
	}
	return out
}

func downsampleRuns(runs []storage.Run, max int) []storage.Run {
	if max <= 1 || len(runs) <= max {
		return runs
	}

	result := make([]storage.Run, 0, max)
	step := float64(len(runs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(runs) {
			idx = len(runs) - 1
		}
		result = append(result, runs[idx])
	}
	return result
}

func writeRunsCSV(path string, runs []storage.Run) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"run_id", "day", "trigger", "outcome", "endpoints", "samples", "providers", "governance_ts", "started_at", "duration_ms", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, run := range runs {
		governance := ""
		if run.GovernanceTS.Valid {
			governance = strconv.FormatInt(run.GovernanceTS.Int64, 10)
		}
		record := []string{
			run.ID.String(),
			run.Day.String(),
			run.Trigger,
			run.Outcome,
			strings.Join(run.Endpoints, " "),
			strconv.Itoa(run.Samples),
			strconv.Itoa(run.Providers),
			governance,
			run.StartedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(run.Duration().Milliseconds(), 10),
			run.Error.ValueOrZero(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRunsPNG(path string, runs []storage.Run) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(runs))
	samples := make([]float64, len(runs))
	providers := make([]float64, len(runs))

	for i, run := range runs {
		x[i] = run.Day.Noon()
		samples[i] = float64(run.Samples)
		providers[i] = float64(run.Providers)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Samples pushed",
			ValueFormatter: countFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Providers",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Samples",
				XValues: x,
				YValues: samples,
			},
			chart.TimeSeries{
				Name:    "Providers",
				XValues: x,
				YValues: providers,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
