// Command trade_report summarises ledger trades for a range of market days,
// writes them to CSV and optionally archives the CSV to S3.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"optionsBot/config"
	"optionsBot/internal/adapters/logger"
	"optionsBot/internal/adapters/s3archive"
	"optionsBot/internal/analytics"
	"optionsBot/internal/app"
	"optionsBot/internal/calendar"
	"optionsBot/internal/domain"
	"optionsBot/internal/utils"
)

var (
	dayFlag    = flag.String("day", "", "last market day to report, YYYY-MM-DD (default today)")
	daysFlag   = flag.Int("days", 1, "number of calendar days ending at -day")
	outFlag    = flag.String("out", "", "CSV output path (default REPORT_DIR/trades_<day>.csv)")
	uploadFlag = flag.Bool("upload", false, "upload the CSV to S3_BUCKET")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStderr(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	loc := calendar.DefaultConfig().Location
	from, to, err := reportRange(*dayFlag, *daysFlag, time.Now(), loc)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	storage, err := app.OpenStorage(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to open ledger: %v", err)
	}
	defer storage.Close()

	trades, err := storage.Ledger.FindBetween(ctx, from, to)
	if err != nil {
		log.Fatalf("FATAL: Failed to read trades: %v", err)
	}

	metrics := analytics.AnalyzePerformance(trades, cfg.InitialCapital, loc)
	printSummary(os.Stdout, from, to.Add(-time.Nanosecond), metrics)

	lastDay := to.Add(-time.Nanosecond)
	path := *outFlag
	if path == "" {
		path = filepath.Join(cfg.ReportDir, fmt.Sprintf("trades_%s.csv", lastDay.Format("2006-01-02")))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create report directory: %v", err)
	}
	if err := utils.WriteTradesToCSV(trades, path); err != nil {
		log.Fatalf("FATAL: Failed to write CSV: %v", err)
	}
	fmt.Printf("\nWrote %d trades to %s\n", len(trades), path)

	if !*uploadFlag {
		return
	}
	if cfg.S3Bucket == "" {
		log.Fatalf("FATAL: -upload requires S3_BUCKET")
	}
	archive, err := s3archive.New(ctx, s3archive.Config{
		Endpoint:       cfg.S3Endpoint,
		Region:         cfg.S3Region,
		Bucket:         cfg.S3Bucket,
		Prefix:         cfg.S3Prefix,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		UseSSL:         true,
		ForcePathStyle: cfg.S3Endpoint != "",
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to configure S3: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer f.Close()
	key, err := archive.Upload(ctx, lastDay, filepath.Base(path), "text/csv", f)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	fmt.Printf("Uploaded to s3://%s/%s\n", cfg.S3Bucket, key)
}

// reportRange returns the half-open [from, to) range of days market days
// ending on day, in loc.
func reportRange(day string, days int, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if days < 1 {
		return time.Time{}, time.Time{}, fmt.Errorf("-days must be at least 1, got %d", days)
	}
	end := calendar.DayStart(now, loc)
	if day != "" {
		d, err := time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -day %q: %w", day, err)
		}
		end = d
	}
	to := end.AddDate(0, 0, 1)
	from := end.AddDate(0, 0, 1-days)
	return from, to, nil
}

func printSummary(out io.Writer, from, to time.Time, m *analytics.PerformanceMetrics) {
	fmt.Fprintf(out, "## Trades %s .. %s\n\n", from.Format("2006-01-02"), to.Format("2006-01-02"))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Trades\t%d (W %d / L %d / flat %d)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades, m.FlatTrades)
	fmt.Fprintf(w, "Win rate\t%.2f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "Net P&L\t%.2f\n", m.TotalProfit)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\n", m.AverageWin, m.AverageLoss)
	fmt.Fprintf(w, "Expectancy\t%.2f\n", m.Expectancy)
	fmt.Fprintf(w, "Max drawdown\t%.2f (%.2f%%)\n", m.MaxDrawdown, m.MaxDrawdownPct*100)
	fmt.Fprintf(w, "Streaks\tW %d / L %d\n", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Avg hold\t%s\n", m.AverageHoldDuration.Round(time.Second))
	w.Flush()

	if len(m.ByReason) == 0 {
		return
	}
	fmt.Fprintln(out, "\nExit Reason\tCount\tTotal PnL")
	reasons := make([]domain.ExitReason, 0, len(m.ByReason))
	for r := range m.ByReason {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	for _, r := range reasons {
		st := m.ByReason[r]
		fmt.Fprintf(w, "%s\t%d\t%.2f\n", r, st.Count, st.PNL)
	}
	w.Flush()
}
