package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"wheelhouse-etl/client/fixture"
	"wheelhouse-etl/client/wheelhouse"
	"wheelhouse-etl/config"
	"wheelhouse-etl/models"
	"wheelhouse-etl/services"
	"wheelhouse-etl/storage"
	"wheelhouse-etl/utils"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()

	var err error
	switch os.Args[1] {
	case "etl":
		err = runETL(cfg, os.Args[2:])
	case "health":
		err = runHealth(cfg, os.Args[2:])
	case "config-check":
		err = runConfigCheck(cfg, os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		os.Exit(1)
	}
}

func runETL(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("etl", flag.ExitOnError)
	dateArg := fs.String("date", "", "report date YYYY-MM-DD (default: yesterday)")
	endArg := fs.String("end-date", "", "process a range ending at this date, inclusive")
	dryRun := fs.Bool("dry-run", false, "plan partitions without writing any files")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)

	logger := newLogger(cfg, *verbose)

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	start, err := resolveDate(*dateArg)
	if err != nil {
		logger.Error().Err(err).Str("date", *dateArg).Msg("bad --date")
		return err
	}
	end := start
	if *endArg != "" {
		if end, err = time.Parse(storage.DateLayout, *endArg); err != nil {
			logger.Error().Err(err).Str("date", *endArg).Msg("bad --end-date")
			return err
		}
	}

	source, err := newSource(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("client setup failed")
		return err
	}
	writer, err := newWriter(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("storage setup failed")
		return err
	}

	orch := services.NewOrchestrator(source, services.NewTransformer(logger), writer, logger)

	summaries, err := orch.RunRange(context.Background(), start, end, *dryRun)
	for _, summary := range summaries {
		printSummary(summary)
	}
	if err != nil {
		logger.Error().Err(err).Msg("etl failed")
		return err
	}
	return nil
}

func runHealth(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	output := fs.String("output", "", "report path (default: {DATA_BASE_PATH}/health.json)")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)

	logger := newLogger(cfg, *verbose)

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	scanner := services.NewHealthScanner(cfg, logger)
	report, err := scanner.Scan()
	if err != nil {
		logger.Error().Err(err).Msg("scan failed")
		return err
	}

	path := *output
	if path == "" {
		path = cfg.HealthFilePath()
	}
	if err := scanner.WriteReport(report, path); err != nil {
		logger.Error().Err(err).Msg("report write failed")
		return err
	}

	fmt.Printf("health: %s, %d files, %.2f MB, %d issues -> %s\n",
		report.Status, report.FileCount, report.TotalSizeMB, len(report.Issues), path)
	return nil
}

func runConfigCheck(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("config-check", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)

	logger := newLogger(cfg, *verbose)

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	fmt.Printf("base url       : %s\n", cfg.BaseURL)
	fmt.Printf("data path      : %s\n", cfg.DataBasePath)
	fmt.Printf("storage format : %s\n", cfg.StorageFormat)
	fmt.Printf("mock mode      : %v\n", cfg.MockMode)
	fmt.Printf("credentials    : %v\n", cfg.HasCredentials())

	if cfg.MockMode || !cfg.HasCredentials() {
		fmt.Println("api ping       : skipped")
		return nil
	}

	client, err := wheelhouse.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("client setup failed")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("api ping failed")
		return err
	}

	fmt.Println("api ping       : ok")
	return nil
}

func newLogger(cfg *config.Config, verbose bool) zerolog.Logger {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return utils.NewLogger(level, cfg.LogFormat)
}

func newSource(cfg *config.Config, logger zerolog.Logger) (services.ListingSource, error) {
	if cfg.MockMode {
		logger.Warn().Str("fixture", cfg.FixturePath).Msg("mock mode: serving fixture data, no API calls will be made")
		return fixture.New(cfg.FixturePath, logger), nil
	}
	return wheelhouse.New(cfg, logger)
}

func newWriter(cfg *config.Config, logger zerolog.Logger) (storage.PartitionWriter, error) {
	switch cfg.StorageFormat {
	case "csv":
		return storage.NewCSVWriter(cfg.RawRoot(), logger), nil
	case "parquet":
		return storage.NewParquetWriter(cfg.RawRoot(), logger), nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_FORMAT %q", cfg.StorageFormat)
	}
}

// resolveDate defaults to yesterday in the reporting timezone: the upstream
// publishes a full day of data only after that day closes.
func resolveDate(arg string) (time.Time, error) {
	if arg != "" {
		return time.Parse(storage.DateLayout, arg)
	}
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		loc = time.UTC
	}
	y, m, d := time.Now().In(loc).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func printSummary(s *models.RunSummary) {
	mode := "written"
	if s.DryRun {
		mode = "planned"
	}
	fmt.Printf("%s: %d records, %d partitions %s, %d invalid rows (%s)\n",
		s.Date, s.TotalRecords, len(s.Partitions), mode, s.InvalidRows,
		s.Elapsed.Round(time.Millisecond))
	for _, p := range s.Partitions {
		fmt.Printf("  %s -> %s (%d rows)\n", p.ListingID, p.Path, p.Rows)
	}
	for _, id := range s.FailedListings {
		fmt.Printf("  %s -> FAILED\n", id)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `wheelhouse-etl: Wheelhouse listings pipeline

Usage:
  wheelhouse-etl etl [--date YYYY-MM-DD] [--end-date YYYY-MM-DD] [--dry-run] [--verbose]
  wheelhouse-etl health [--output PATH] [--verbose]
  wheelhouse-etl config-check [--verbose]
`)
}
