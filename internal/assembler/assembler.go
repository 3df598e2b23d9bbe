// Package assembler turns provider-native page entries into candle records
// and appends them to the run's dataset.
package assembler

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/victorl2/trade-optimizer/internal/exchange"
	"github.com/victorl2/trade-optimizer/internal/models"
)

// Mode selects how entries at or after the end boundary are handled
type Mode string

const (
	// ModeBreak stops reading a page at the first entry at or after the end.
	// It relies on the provider returning entries in ascending order.
	ModeBreak Mode = "break"

	// ModeFilter skips every entry at or after the end and keeps scanning.
	ModeFilter Mode = "filter"
)

// ParseMode converts a configuration value to a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBreak, "":
		return ModeBreak, nil
	case ModeFilter:
		return ModeFilter, nil
	default:
		return "", fmt.Errorf("unknown assemble mode %q", s)
	}
}

// Result summarises one assembled page
type Result struct {
	Appended  int  // records added to the dataset
	Discarded int  // entries at or after the end boundary
	Stopped   bool // the page was cut short by ModeBreak
}

// Assembler converts page entries for a fixed interval and end boundary
type Assembler struct {
	interval int
	end      int64
	mode     Mode
}

// New creates an assembler. end is exclusive.
func New(interval int, end int64, mode Mode) *Assembler {
	if mode == "" {
		mode = ModeBreak
	}
	return &Assembler{interval: interval, end: end, mode: mode}
}

// Assemble appends every entry of page with open_time < end to dataset, in
// page order. No deduplication is done. An entry without open_time is an
// error; records appended before it stay in the dataset.
func (a *Assembler) Assemble(page *exchange.Page, dataset *models.Dataset) (Result, error) {
	var result Result
	if page == nil {
		return result, nil
	}

	for i, entry := range page.Entries {
		openTime := entry.Get("open_time")
		if !openTime.Exists() {
			return result, fmt.Errorf("entry %d: missing open_time", i)
		}

		ts := openTime.Int()
		if ts >= a.end {
			if a.mode == ModeBreak {
				result.Discarded += len(page.Entries) - i
				result.Stopped = true
				break
			}
			result.Discarded++
			continue
		}

		dataset.Append(models.NewCandle(ts,
			field(entry, "open"),
			field(entry, "high"),
			field(entry, "low"),
			field(entry, "close"),
			field(entry, "volume"),
			a.interval))
		result.Appended++
	}

	return result, nil
}

// field returns the entry value as text. Quoted values are returned without
// quotes and numbers keep their JSON spelling.
func field(entry gjson.Result, name string) string {
	v := entry.Get(name)
	if v.Type == gjson.Number {
		return v.Raw
	}
	return v.String()
}
