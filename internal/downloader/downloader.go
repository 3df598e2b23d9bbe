// Package downloader drives one download run: it resolves the time range,
// plans the windows, fetches and assembles every page in order, and writes
// the dataset once all windows are done.
//
// A run is strictly sequential. One request is in flight at a time and the
// dataset is only touched from the calling goroutine. A run that fails or is
// cancelled before the write step leaves no output behind.
package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/victorl2/trade-optimizer/internal/assembler"
	"github.com/victorl2/trade-optimizer/internal/config"
	"github.com/victorl2/trade-optimizer/internal/exchange"
	"github.com/victorl2/trade-optimizer/internal/gaps"
	"github.com/victorl2/trade-optimizer/internal/logger"
	"github.com/victorl2/trade-optimizer/internal/models"
	"github.com/victorl2/trade-optimizer/internal/planner"
	"github.com/victorl2/trade-optimizer/internal/progress"
	"github.com/victorl2/trade-optimizer/internal/storage"
	"github.com/victorl2/trade-optimizer/internal/timerange"
	"github.com/victorl2/trade-optimizer/internal/validator"
)

// Options wires the collaborators of a Downloader
type Options struct {
	Config   *config.Config
	Fetcher  exchange.PageFetcher
	Progress progress.Sink         // nil disables progress reporting
	CSV      storage.DatasetWriter // nil uses storage.CSVWriter
	DuckDB   storage.DatasetWriter // used when Config.Output.DuckDBPath is set; nil uses storage.DuckDBWriter
	Logger   *slog.Logger
	Now      func() time.Time // nil uses time.Now
}

// Plan is the resolved work of a run
type Plan struct {
	Range           *timerange.Range
	Windows         []int64
	OutputPath      string
	ExpectedCandles int64
}

// Result describes a completed run
type Result struct {
	Plan       *Plan
	Dataset    *models.Dataset
	Summary    *models.Summary // nil when the dataset holds non-numeric values
	Gaps       *gaps.Report
	Validation *validator.Results
	Metrics    RunMetrics
	OutputPath string
}

// Downloader runs downloads for one configuration
type Downloader struct {
	config   *config.Config
	fetcher  exchange.PageFetcher
	progress progress.Sink
	csv      storage.DatasetWriter
	duckdb   storage.DatasetWriter
	mode     assembler.Mode
	checks   *validator.Validator
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a downloader from options
func New(opts Options) (*Downloader, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}

	mode, err := assembler.ParseMode(opts.Config.Download.AssembleMode)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Downloader{
		config:   opts.Config,
		fetcher:  opts.Fetcher,
		progress: opts.Progress,
		csv:      opts.CSV,
		duckdb:   opts.DuckDB,
		mode:     mode,
		logger:   opts.Logger,
		now:      opts.Now,
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.progress == nil {
		d.progress = progress.Nop{}
	}
	if d.csv == nil {
		d.csv = storage.NewCSVWriter(d.logger)
	}
	if d.duckdb == nil && opts.Config.Output.DuckDBPath != "" {
		d.duckdb = storage.NewDuckDBWriter(storage.DefaultTable, d.logger)
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.checks = validator.NewValidator(d.logger)

	return d, nil
}

// Prepare resolves the range and plans the windows without any request
func (d *Downloader) Prepare() (*Plan, error) {
	dl := d.config.Download

	r, err := timerange.Resolve(timerange.ResolveRequest{
		Start:      dl.Start,
		End:        dl.End,
		Provider:   d.config.Exchange.Provider,
		Asset:      dl.Asset,
		MarketType: dl.MarketType,
		Interval:   dl.Interval,
	}, d.now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve time range: %w", err)
	}

	windows, err := planner.Plan(r.Start, r.End, dl.Interval, dl.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to plan windows: %w", err)
	}

	return &Plan{
		Range:           r,
		Windows:         windows,
		OutputPath:      filepath.Join(d.config.Output.Dir, r.Filename),
		ExpectedCandles: r.ExpectedCandles(dl.Interval),
	}, nil
}

// Run prepares and executes a download
func (d *Downloader) Run(ctx context.Context) (*Result, error) {
	plan, err := d.Prepare()
	if err != nil {
		return nil, err
	}
	return d.Execute(ctx, plan)
}

// Execute fetches every window of plan in order and writes the dataset.
// The first fetch or assembly error aborts the run before anything is written.
func (d *Downloader) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	dl := d.config.Download
	metrics := newMetricsCollector()
	ctx = logger.WithAsset(ctx, dl.Asset)

	d.logger.Info("download started",
		"asset", dl.Asset,
		"market_type", dl.MarketType,
		"interval", dl.Interval,
		"start", plan.Range.StartDate,
		"end", plan.Range.EndDate,
		"windows", len(plan.Windows),
		"expected_candles", plan.ExpectedCandles,
		"assemble_mode", d.mode)

	dataset := models.NewDataset(datasetCapacity(plan, dl.PageSize))
	if err := d.fetchAll(ctx, plan, dataset, metrics); err != nil {
		d.logRunMetrics(metrics.snapshot(), "download aborted")
		return nil, err
	}

	result := &Result{
		Plan:       plan,
		Dataset:    dataset,
		OutputPath: plan.OutputPath,
	}

	detector := gaps.NewDetector(dl.Interval, d.logger)
	result.Gaps = detector.Detect(dataset.Candles(), plan.Range.Start, plan.Range.End)
	detector.Log(result.Gaps)

	validation, err := d.checks.Validate(ctx, dataset.Candles())
	if err != nil {
		d.logRunMetrics(metrics.snapshot(), "download aborted")
		return nil, fmt.Errorf("download interrupted during validation: %w", err)
	}
	d.checks.Log(validation)
	result.Validation = validation

	summary, err := dataset.Summarize()
	if err != nil {
		d.logger.Warn("failed to summarize dataset", "error", err)
	} else {
		result.Summary = summary
	}

	if err := d.write(ctx, plan, dataset); err != nil {
		d.logRunMetrics(metrics.snapshot(), "download aborted")
		return nil, err
	}

	result.Metrics = metrics.snapshot()
	d.logRunMetrics(result.Metrics, "download finished")
	return result, nil
}

func (d *Downloader) fetchAll(ctx context.Context, plan *Plan, dataset *models.Dataset, metrics *metricsCollector) error {
	dl := d.config.Download
	total := len(plan.Windows)
	asm := assembler.New(dl.Interval, plan.Range.End, d.mode)

	d.progress.Update(progress.Event{Completed: 0, Total: total})
	defer d.progress.Done()

	for i, window := range plan.Windows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("download interrupted at window %d of %d: %w", i+1, total, err)
		}

		windowCtx := logger.WithWindow(ctx, window)
		started := time.Now()

		page, err := d.fetcher.FetchPage(windowCtx, exchange.PageRequest{
			Symbol:   dl.Asset,
			Interval: dl.Interval,
			Limit:    dl.PageSize,
			From:     window,
		})
		if err != nil {
			return fmt.Errorf("window %d of %d: %w", i+1, total, err)
		}
		metrics.recordPage(page.Attempts, time.Since(started))

		assembled, err := asm.Assemble(page, dataset)
		metrics.recordAssembled(assembled.Appended, assembled.Discarded)
		if err != nil {
			return fmt.Errorf("failed to assemble window %d: %w", window, err)
		}

		logger.FromContext(windowCtx, d.logger).Debug("window assembled",
			"attempts", page.Attempts,
			"entries", len(page.Entries),
			"appended", assembled.Appended,
			"discarded", assembled.Discarded,
			"stopped", assembled.Stopped)

		d.progress.Update(progress.Event{Completed: i + 1, Total: total})
	}

	return nil
}

// targets lists the sinks of a run in write order; the CSV file comes first
func (d *Downloader) targets(plan *Plan) []storage.Target {
	targets := []storage.Target{{Name: "csv", Path: plan.OutputPath, Writer: d.csv}}
	if d.duckdb != nil && d.config.Output.DuckDBPath != "" {
		targets = append(targets, storage.Target{Name: "duckdb", Path: d.config.Output.DuckDBPath, Writer: d.duckdb})
	}
	return targets
}

func (d *Downloader) write(ctx context.Context, plan *Plan, dataset *models.Dataset) error {
	for _, target := range d.targets(plan) {
		err := logger.TimedOperation(d.logger.With("target", target.Name, "path", target.Path), "write "+target.Name, func() error {
			return target.Writer.Write(ctx, target.Path, dataset)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// maxCapacityHint bounds the up-front allocation of a dataset; larger runs grow on append
const maxCapacityHint = 1 << 20

// datasetCapacity returns the number of candles to reserve for plan. The
// expected count is only a hint: a far-away start date must not reserve
// memory before any request succeeds.
func datasetCapacity(plan *Plan, pageSize int) int {
	hint := plan.ExpectedCandles
	if byWindows := int64(len(plan.Windows)) * int64(pageSize); byWindows < hint {
		hint = byWindows
	}
	if hint > maxCapacityHint {
		hint = maxCapacityHint
	}
	if hint < 0 {
		hint = 0
	}
	return int(hint)
}

func (d *Downloader) logRunMetrics(m RunMetrics, msg string) {
	d.logger.Info(msg,
		"windows", m.Windows,
		"requests", m.Requests,
		"failed_attempts", m.FailedAttempts,
		"candles", m.Candles,
		"discarded", m.Discarded,
		"avg_page_time", m.AvgPageTime,
		"elapsed", m.Elapsed)
}
