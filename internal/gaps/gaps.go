// Package gaps inspects an assembled dataset for missing interval steps,
// repeated open times and out-of-order records. The report is informational:
// it never changes the dataset.
package gaps

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/victorl2/trade-optimizer/internal/models"
)

// Gap is a run of missing candles with open times in [Start, End)
type Gap struct {
	Start   int64 `json:"start"`
	End     int64 `json:"end"`
	Missing int64 `json:"missing"`
}

// String returns a human-readable representation of the gap
func (g Gap) String() string {
	return fmt.Sprintf("[%d, %d) %d candles", g.Start, g.End, g.Missing)
}

// Report summarises the continuity of a dataset
type Report struct {
	Gaps           []Gap `json:"gaps"`
	MissingCandles int64 `json:"missing_candles"`
	Duplicates     int   `json:"duplicates"`
	OutOfOrder     int   `json:"out_of_order"`
}

// Clean reports whether no gap, duplicate or reordering was found
func (r *Report) Clean() bool {
	return len(r.Gaps) == 0 && r.Duplicates == 0 && r.OutOfOrder == 0
}

// Detector checks datasets of a fixed interval
type Detector struct {
	step   int64
	logger *slog.Logger
}

// NewDetector creates a detector for candles of intervalMinutes
func NewDetector(intervalMinutes int, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{step: int64(intervalMinutes) * 60, logger: logger}
}

// Detect compares the open times of candles against the expected sequence
// start, start+step, ... below end. Candles are inspected in a sorted copy.
func (d *Detector) Detect(candles []models.Candle, start, end int64) *Report {
	report := &Report{}
	if d.step <= 0 || start >= end {
		return report
	}

	times := make([]int64, len(candles))
	for i, c := range candles {
		times[i] = c.OpenTime
		if i > 0 && c.OpenTime < candles[i-1].OpenTime {
			report.OutOfOrder++
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	expected := start
	for i, ts := range times {
		if i > 0 && ts == times[i-1] {
			report.Duplicates++
			continue
		}
		if ts > expected {
			report.add(expected, ts, d.step)
		}
		if next := ts + d.step; next > expected {
			expected = next
		}
	}

	if expected < end {
		report.add(expected, end, d.step)
	}

	return report
}

func (r *Report) add(from, to, step int64) {
	missing := (to - from + step - 1) / step
	r.Gaps = append(r.Gaps, Gap{Start: from, End: to, Missing: missing})
	r.MissingCandles += missing
}

// Log writes the report as structured log records
func (d *Detector) Log(report *Report) {
	if report.Clean() {
		d.logger.Info("dataset is continuous")
		return
	}

	d.logger.Warn("dataset continuity issues",
		"gaps", len(report.Gaps),
		"missing_candles", report.MissingCandles,
		"duplicates", report.Duplicates,
		"out_of_order", report.OutOfOrder)

	for _, gap := range report.Gaps {
		d.logger.Debug("gap detected",
			"start", gap.Start,
			"end", gap.End,
			"missing", gap.Missing)
	}
}
