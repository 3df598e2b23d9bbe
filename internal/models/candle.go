// Package models provides the data structures for downloaded kline data.
// It contains the candle record written to disk, the ordered dataset a run
// assembles, and summary statistics computed over that dataset.
package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV candle as it is persisted to the output file.
// Price and volume fields keep the provider's text verbatim so that no precision
// is lost between the remote payload and the CSV row.
type Candle struct {
	OpenTime  int64  `json:"timestamp" db:"timestamp"`
	Open      string `json:"open" db:"open"`
	High      string `json:"high" db:"high"`
	Low       string `json:"low" db:"low"`
	Close     string `json:"close" db:"close"`
	Volume    string `json:"volume" db:"volume"`
	CloseTime int64  `json:"close_time" db:"close_time"`
}

// NewCandle builds a candle whose CloseTime is derived from the open time and
// the candle interval in minutes.
func NewCandle(openTime int64, open, high, low, close, volume string, intervalMinutes int) Candle {
	return Candle{
		OpenTime:  openTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		CloseTime: CloseTimeFor(openTime, intervalMinutes),
	}
}

// CloseTimeFor returns openTime + intervalMinutes*60.
func CloseTimeFor(openTime int64, intervalMinutes int) int64 {
	return openTime + int64(intervalMinutes)*60
}

// OpenAt returns the open time as a UTC time.Time.
func (c *Candle) OpenAt() time.Time {
	return time.Unix(c.OpenTime, 0).UTC()
}

// GetOpenDecimal returns the open price as a decimal.Decimal for precise calculations.
func (c *Candle) GetOpenDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Open)
}

// GetHighDecimal returns the high price as a decimal.Decimal for precise calculations.
func (c *Candle) GetHighDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.High)
}

// GetLowDecimal returns the low price as a decimal.Decimal for precise calculations.
func (c *Candle) GetLowDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Low)
}

// GetCloseDecimal returns the close price as a decimal.Decimal for precise calculations.
func (c *Candle) GetCloseDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Close)
}

// GetVolumeDecimal returns the volume as a decimal.Decimal for precise calculations.
func (c *Candle) GetVolumeDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Volume)
}

// Record returns the candle as a CSV record in output column order:
// timestamp, open, high, low, close, volume, close_time.
func (c *Candle) Record() []string {
	return []string{
		strconv.FormatInt(c.OpenTime, 10),
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Volume,
		strconv.FormatInt(c.CloseTime, 10),
	}
}

// String returns a human-readable string representation of the candle.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{OpenTime: %s, O: %s, H: %s, L: %s, C: %s, V: %s, CloseTime: %d}",
		c.OpenAt().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume, c.CloseTime)
}
