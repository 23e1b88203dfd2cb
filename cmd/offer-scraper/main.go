package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/maltedev/offer-scraper/internal/app"
	"github.com/maltedev/offer-scraper/internal/config"
	"github.com/maltedev/offer-scraper/internal/database"
	"github.com/maltedev/offer-scraper/internal/events"
	"github.com/maltedev/offer-scraper/internal/logger"
	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/maltedev/offer-scraper/internal/scraper"
	"github.com/maltedev/offer-scraper/internal/sheet"
	"github.com/maltedev/offer-scraper/internal/storage"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run returns the process exit code so deferred cleanup always runs before exit.
func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("offer-scraper", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		ids       = fs.String("ids", "", "Comma-separated offer ids or offer URLs")
		inputFile = fs.String("file", "", "File with one offer id or URL per line")
		formats   = fs.String("format", "xlsx", "Comma-separated sinks: xlsx, json, db, stdout")
		template  = fs.String("template", "", "Listing template workbook (defaults to SHEET_TEMPLATE)")
		sheetName = fs.String("sheet", "", "Sheet to fill (defaults to SHEET_NAME or the active sheet)")
		xlsxOut   = fs.String("output", "", "Workbook to write (defaults to SHEET_OUTPUT)")
		jsonOut   = fs.String("json-output", "offers.json", "JSON file for the json sink")
		workers   = fs.Int("workers", 1, "Offers processed concurrently")
		envFile   = fs.String("env", ".env", "Env file to load")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}
	if *template != "" {
		cfg.Sheet.TemplatePath = *template
	}
	if *sheetName != "" {
		cfg.Sheet.SheetName = *sheetName
	}
	if *xlsxOut != "" {
		cfg.Sheet.OutputPath = *xlsxOut
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	offerIDs, err := collectOfferIDs(*ids, *inputFile)
	if err != nil {
		logger.Warn("some offer ids were ignored", "error", err)
	}
	if len(offerIDs) == 0 {
		fmt.Fprintln(stderr, "No offers to process. Use -ids or -file.")
		fs.Usage()
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sinks, err := openSinks(ctx, cfg, strings.Split(*formats, ","), *jsonOut, logger)
	if err != nil {
		logger.Error("failed to open sinks", "error", err)
		return 1
	}
	defer sinks.close()

	pipeline, err := app.NewPipeline(cfg, sinks.multi, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return 1
	}
	defer pipeline.Close()
	pipeline.Service.SetWorkers(*workers)

	logger.Info("starting offer scraper", "offers", len(offerIDs), "mode", cfg.Fetcher.Mode, "workers", *workers)

	summary, runErr := pipeline.Service.Run(ctx, offerIDs)

	// Rows collected before a cancellation are still written out.
	if err := sinks.flush(); err != nil {
		logger.Error("failed to write output", "error", err)
		return 1
	}

	if runErr != nil {
		logger.Warn("run interrupted", "error", runErr)
	}
	fmt.Fprintf(stderr, "offers: %d  saved: %d  empty: %d  blocked: %d  failed: %d  records: %d\n",
		summary.Total, summary.Succeeded, summary.Skipped, summary.Blocked, summary.Failed, summary.Records)

	if summary.Succeeded == 0 {
		return 1
	}
	return 0
}

func collectOfferIDs(list, file string) ([]string, error) {
	var (
		ids  []string
		errs []error
	)

	if list != "" {
		parsed, err := app.SplitOfferIDs(list)
		ids = append(ids, parsed...)
		errs = append(errs, err)
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return ids, fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()

		parsed, err := app.ReadOfferIDs(f)
		ids = append(ids, parsed...)
		errs = append(errs, err)
	}

	return ids, errors.Join(errs...)
}

type sinkSet struct {
	multi   scraper.MultiSink
	table   *sheet.Table
	xlsxOut string
	db      *database.DB
}

func openSinks(ctx context.Context, cfg *config.Config, formats []string, jsonOut string, logger *slog.Logger) (*sinkSet, error) {
	set := &sinkSet{}

	for _, format := range formats {
		switch strings.TrimSpace(strings.ToLower(format)) {
		case "xlsx":
			var (
				table *sheet.Table
				err   error
			)
			if cfg.Sheet.TemplatePath != "" {
				table, err = sheet.Open(cfg.Sheet.TemplatePath, cfg.Sheet.SheetName, nil, cfg.Sheet.StartRow, logger)
			} else {
				table, err = sheet.New(nil, cfg.Sheet.StartRow, logger)
			}
			if err != nil {
				set.close()
				return nil, err
			}
			set.table, set.xlsxOut = table, cfg.Sheet.OutputPath
			set.multi = append(set.multi, table)
		case "json":
			sink, err := storage.NewJSONSink(jsonOut)
			if err != nil {
				set.close()
				return nil, err
			}
			set.multi = append(set.multi, sink)
		case "db":
			db, err := database.New(ctx, cfg.Database.DSN())
			if err != nil {
				set.close()
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}
			set.db = db
			if err := db.Migrate(ctx); err != nil {
				set.close()
				return nil, err
			}
			set.multi = append(set.multi, events.NewPublisher(db, cfg.Redis.Stream, logger))
		case "stdout":
			set.multi = append(set.multi, &stdoutSink{enc: json.NewEncoder(os.Stdout)})
		case "":
		default:
			set.close()
			return nil, fmt.Errorf("unknown format %q", format)
		}
	}

	if len(set.multi) == 0 {
		return nil, errors.New("no output format selected")
	}
	return set, nil
}

func (s *sinkSet) flush() error {
	if s.table == nil {
		return nil
	}
	return s.table.SaveAs(s.xlsxOut)
}

func (s *sinkSet) close() {
	if s.table != nil {
		s.table.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// stdoutSink prints one JSON object per record.
type stdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (s *stdoutSink) Save(ctx context.Context, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if err := s.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
