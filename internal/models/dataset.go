package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Header is the column header of the output file. The open time column is
// named "timestamp" because it indexes the table.
var Header = []string{"timestamp", "open", "high", "low", "close", "volume", "close_time"}

// Dataset is the ordered collection of candles assembled during one run.
// Records keep provider order within a page and window order across pages.
// Duplicates are not removed.
type Dataset struct {
	candles []Candle
}

// NewDataset creates an empty dataset with room for capacity candles.
func NewDataset(capacity int) *Dataset {
	if capacity < 0 {
		capacity = 0
	}
	return &Dataset{candles: make([]Candle, 0, capacity)}
}

// Append adds a candle at the end of the dataset.
func (d *Dataset) Append(c Candle) {
	d.candles = append(d.candles, c)
}

// Len returns the number of candles in the dataset.
func (d *Dataset) Len() int {
	return len(d.candles)
}

// Candles returns the underlying ordered slice. Callers must not modify it.
func (d *Dataset) Candles() []Candle {
	return d.candles
}

// Summary describes an assembled dataset for the end-of-run report.
type Summary struct {
	Count       int
	FirstOpen   int64
	LastOpen    int64
	HighestHigh decimal.Decimal
	LowestLow   decimal.Decimal
	TotalVolume decimal.Decimal
}

// Summarize computes the dataset summary. It fails on the first candle whose
// high, low or volume is not a decimal number.
func (d *Dataset) Summarize() (*Summary, error) {
	s := &Summary{Count: len(d.candles)}
	if s.Count == 0 {
		return s, nil
	}

	s.FirstOpen = d.candles[0].OpenTime
	s.LastOpen = d.candles[s.Count-1].OpenTime

	for i := range d.candles {
		c := &d.candles[i]

		high, err := c.GetHighDecimal()
		if err != nil {
			return nil, fmt.Errorf("candle %d: invalid high %q: %w", i, c.High, err)
		}
		low, err := c.GetLowDecimal()
		if err != nil {
			return nil, fmt.Errorf("candle %d: invalid low %q: %w", i, c.Low, err)
		}
		volume, err := c.GetVolumeDecimal()
		if err != nil {
			return nil, fmt.Errorf("candle %d: invalid volume %q: %w", i, c.Volume, err)
		}

		if i == 0 {
			s.HighestHigh = high
			s.LowestLow = low
		} else {
			s.HighestHigh = decimal.Max(s.HighestHigh, high)
			s.LowestLow = decimal.Min(s.LowestLow, low)
		}
		s.TotalVolume = s.TotalVolume.Add(volume)
	}

	return s, nil
}
