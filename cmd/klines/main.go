// Kline Downloader CLI
// This application downloads historical candles (klines) from the Bybit public
// API over a time range and writes them to a CSV file, optionally loading the
// same rows into a DuckDB database.
//
// Usage:
//
//	klines --start "01-09-2020 00:00" --asset BTCUSD --interval 1
//	klines --config klines.yaml --end "01-10-2020 00:00" --duckdb klines.duckdb
//
// For detailed help, use: klines --help
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/victorl2/trade-optimizer/internal/config"
	"github.com/victorl2/trade-optimizer/internal/downloader"
	apperrors "github.com/victorl2/trade-optimizer/internal/errors"
	"github.com/victorl2/trade-optimizer/internal/exchange"
	"github.com/victorl2/trade-optimizer/internal/logger"
	"github.com/victorl2/trade-optimizer/internal/progress"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "klines"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
	ExitInterrupt     = 130
)

// Flags represents the command line flags
type Flags struct {
	ConfigPath string
	Overrides  map[string]any
	Quiet      bool
	Help       bool
	Version    bool
}

// main is the entry point for the CLI application
func main() {
	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one download and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return ExitUsageError
	}

	if flags.Help {
		printUsage(stdout)
		return ExitSuccess
	}
	if flags.Version {
		fmt.Fprintf(stdout, "%s version %s\n", AppName, Version)
		return ExitSuccess
	}

	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.NewConfigManager(flags.ConfigPath, bootstrap).LoadConfig(flags.Overrides)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	lm, err := logger.NewLoggerManager(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to setup logging: %v\n", err)
		return ExitConfigError
	}
	defer lm.Close()

	log := lm.GetComponentLogger("downloader")
	retry := apperrors.NewRetryPolicy(cfg.Retry, lm.GetComponentLogger("retry"))
	adapter := exchange.NewBybitAdapter(cfg.Exchange, retry, lm.GetComponentLogger("exchange"))

	var sink progress.Sink = progress.NewBar(stdout)
	if flags.Quiet {
		sink = progress.Nop{}
	}

	d, err := downloader.New(downloader.Options{
		Config:   cfg,
		Fetcher:  adapter,
		Progress: sink,
		Logger:   log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	plan, err := d.Prepare()
	if err != nil {
		log.Error("failed to prepare download", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	dl := cfg.Download
	fmt.Fprintf(stdout, "Downloading dataset %s %s in candles of %dm from %s to %s\n",
		dl.Asset, dl.MarketType, dl.Interval, plan.Range.StartDate, plan.Range.EndDate)
	fmt.Fprintf(stdout, "total number of candles is %d\n", plan.ExpectedCandles)

	result, err := d.Execute(ctx, plan)
	if err != nil {
		log.Error("download failed", "error", err, "run_id", lm.RunID())
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	printSummary(stdout, result)
	return ExitSuccess
}

// exitCode maps a run error to a process exit code
func exitCode(err error) int {
	var (
		parseErr     *apperrors.ParseError
		exhaustedErr *apperrors.ExhaustedError
		fetchErr     *apperrors.FetchFailure
		writeErr     *apperrors.WriteError
	)

	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitInterrupt
	case errors.As(err, &parseErr):
		return ExitConfigError
	case errors.As(err, &exhaustedErr), errors.As(err, &fetchErr):
		return ExitConnectionErr
	case errors.As(err, &writeErr):
		return ExitDataError
	default:
		// malformed page entries
		return ExitDataError
	}
}

// printSummary prints the final confirmation
func printSummary(w io.Writer, result *downloader.Result) {
	fmt.Fprintln(w, "Download finished !!!")
	fmt.Fprintf(w, "  file:     %s\n", result.OutputPath)
	fmt.Fprintf(w, "  candles:  %d\n", result.Dataset.Len())

	if s := result.Summary; s != nil && s.Count > 0 {
		fmt.Fprintf(w, "  range:    %d - %d\n", s.FirstOpen, s.LastOpen)
		fmt.Fprintf(w, "  high/low: %s / %s\n", s.HighestHigh.String(), s.LowestLow.String())
		fmt.Fprintf(w, "  volume:   %s\n", s.TotalVolume.String())
	}

	if g := result.Gaps; g != nil && !g.Clean() {
		fmt.Fprintf(w, "  warning:  %d missing candles in %d gaps, %d duplicates\n",
			g.MissingCandles, len(g.Gaps), g.Duplicates)
	}

	if v := result.Validation; v != nil && !v.Clean() {
		fmt.Fprintf(w, "  warning:  %d candle anomalies, see log for details\n", len(v.Anomalies))
	}

	m := result.Metrics
	fmt.Fprintf(w, "  requests: %d (%d retried) in %s\n", m.Requests, m.FailedAttempts, m.Elapsed.Round(time.Millisecond))
}

// Flag parsing functions

// parseFlags parses command line arguments into configuration overrides
func parseFlags(args []string) (*Flags, error) {
	flags := &Flags{Overrides: make(map[string]any)}

	value := func(i int) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", args[i])
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--help", "-h":
			flags.Help = true
			continue
		case "--version", "-v":
			flags.Version = true
			continue
		case "--quiet", "-q":
			flags.Quiet = true
			continue
		}

		v, err := value(i)
		if err != nil {
			if _, known := flagKeys[args[i]]; known || args[i] == "--config" || args[i] == "-c" {
				return nil, err
			}
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}

		switch args[i] {
		case "--config", "-c":
			flags.ConfigPath = v
		default:
			key, ok := flagKeys[args[i]]
			if !ok {
				return nil, fmt.Errorf("unknown flag: %s", args[i])
			}
			if intKeys[key] {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, fmt.Errorf("invalid %s value %q: %w", args[i], v, err)
				}
				flags.Overrides[key] = n
			} else {
				flags.Overrides[key] = v
			}
		}
		i++
	}

	return flags, nil
}

// flagKeys maps value flags to configuration keys
var flagKeys = map[string]string{
	"--start":        "download.start",
	"-s":             "download.start",
	"--end":          "download.end",
	"-e":             "download.end",
	"--asset":        "download.asset",
	"-a":             "download.asset",
	"--market-type":  "download.market_type",
	"-m":             "download.market_type",
	"--interval":     "download.interval",
	"-i":             "download.interval",
	"--page-size":    "download.page_size",
	"--mode":         "download.assemble_mode",
	"--output-dir":   "output.dir",
	"-o":             "output.dir",
	"--duckdb":       "output.duckdb_path",
	"--max-attempts": "retry.max_attempts",
	"--log-level":    "logging.level",
}

// intKeys lists configuration keys parsed as integers
var intKeys = map[string]bool{
	"download.interval":  true,
	"download.page_size": true,
	"retry.max_attempts": true,
}

// Help and usage functions

// printUsage prints the usage information
func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - Historical Kline Downloader v%s

USAGE:
    %s [options]

OPTIONS:
    --config, -c <path>        Configuration file (YAML, JSON or TOML)
    --start, -s <date>         Start date, DD-MM-YYYY HH:MM (default: 01-09-2020 00:00)
    --end, -e <date>           End date, DD-MM-YYYY HH:MM (default: now)
    --asset, -a <symbol>       Asset symbol (default: BTCUSD)
    --market-type, -m <type>   Market type used in the file name (default: inverse)
    --interval, -i <minutes>   Candle interval: 1, 3, 5, 15, 30, 60, 120, 240, 360, 720 (default: 1)
    --page-size <n>            Candles per request (default: 200)
    --mode <break|filter>      Handling of candles past the end date (default: break)
    --output-dir, -o <dir>     Directory for the CSV file (default: .)
    --duckdb <path>            Also load the candles into this DuckDB database
    --max-attempts <n>         Attempts per page, 0 retries forever (default: 0)
    --log-level <level>        debug, info, warn or error (default: info)
    --quiet, -q                Do not print the progress bar
    --help, -h                 Show help information
    --version, -v              Show version information

EXAMPLES:
    # Download one month of BTCUSD 1-minute candles
    %s --start "01-09-2020 00:00" --end "01-10-2020 00:00"

    # Download ETHUSD 15-minute candles up to now and load them into DuckDB
    %s -a ETHUSD -i 15 --duckdb klines.duckdb

CONFIGURATION:
    Configuration is read from defaults, the config file, environment
    variables and flags, each overriding the previous one.
    Environment variables use the KLINES_ prefix, e.g. KLINES_DOWNLOAD_ASSET.

EXIT CODES:
    0 success, 1 usage error, 2 configuration or date error,
    3 fetch retries exhausted, 4 data error (malformed page or write failure),
    130 interrupted
`, AppName, Version, AppName, AppName, AppName)
}
