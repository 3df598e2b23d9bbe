// Package validator checks downloaded candles for logical inconsistencies and
// anomalies: prices outside the high/low bounds, negative or unparsable values,
// price spikes and volume surges.
//
// Validation is informational. Candles are never changed or removed; findings
// are returned in a Results value and logged as warnings.
package validator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/victorl2/trade-optimizer/internal/models"
)

// AnomalyType represents the kind of finding
type AnomalyType string

const (
	AnomalyTypeInvalidNumber AnomalyType = "invalid_number"
	AnomalyTypeHighBelowBody AnomalyType = "high_below_body"
	AnomalyTypeLowAboveBody  AnomalyType = "low_above_body"
	AnomalyTypeHighBelowLow  AnomalyType = "high_below_low"
	AnomalyTypeNegative      AnomalyType = "negative_value"
	AnomalyTypePriceSpike    AnomalyType = "price_spike"
	AnomalyTypeVolumeSurge   AnomalyType = "volume_surge"
)

// SeverityLevel ranks findings
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityCritical SeverityLevel = "critical"
)

// Anomaly is one finding for the candle at OpenTime
type Anomaly struct {
	Type     AnomalyType   `json:"type"`
	Severity SeverityLevel `json:"severity"`
	OpenTime int64         `json:"open_time"`
	Message  string        `json:"message"`
}

// Results holds every finding of one validation pass
type Results struct {
	Checked   int                 `json:"checked"`
	Anomalies []Anomaly           `json:"anomalies"`
	ByType    map[AnomalyType]int `json:"by_type"`
}

// Clean reports whether no anomaly was found
func (r *Results) Clean() bool {
	return len(r.Anomalies) == 0
}

// Thresholds configures the cross-candle detectors.
// PriceSpike is the relative close-to-close change (5 means 500%).
// VolumeSurge is the ratio to the average volume of the preceding window.
type Thresholds struct {
	PriceSpike   decimal.Decimal
	VolumeSurge  decimal.Decimal
	VolumeWindow int
}

// DefaultThresholds returns a 500% price spike and 10x volume surge over 20 candles
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceSpike:   decimal.NewFromInt(5),
		VolumeSurge:  decimal.NewFromInt(10),
		VolumeWindow: 20,
	}
}

// Validator runs the candle checks
type Validator struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// NewValidator creates a validator with default thresholds
func NewValidator(logger *slog.Logger) *Validator {
	return NewValidatorWithThresholds(DefaultThresholds(), logger)
}

// NewValidatorWithThresholds creates a validator with custom thresholds
func NewValidatorWithThresholds(thresholds Thresholds, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{thresholds: thresholds, logger: logger}
}

type parsed struct {
	open, high, low, close, volume decimal.Decimal
}

// Validate checks candles in dataset order
func (v *Validator) Validate(ctx context.Context, candles []models.Candle) (*Results, error) {
	results := &Results{ByType: make(map[AnomalyType]int)}

	var (
		prev    *parsed
		volumes []decimal.Decimal
	)

	for i := range candles {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		c := &candles[i]
		results.Checked++

		p, err := parse(c)
		if err != nil {
			results.add(Anomaly{
				Type:     AnomalyTypeInvalidNumber,
				Severity: SeverityHigh,
				OpenTime: c.OpenTime,
				Message:  err.Error(),
			})
			prev = nil
			continue
		}

		for _, a := range logicalAnomalies(c.OpenTime, p) {
			results.add(a)
		}

		if prev != nil && prev.close.IsPositive() {
			change := p.close.Sub(prev.close).Div(prev.close).Abs()
			if change.GreaterThan(v.thresholds.PriceSpike) {
				results.add(Anomaly{
					Type:     AnomalyTypePriceSpike,
					Severity: SeverityMedium,
					OpenTime: c.OpenTime,
					Message:  fmt.Sprintf("close moved %s%% from %s to %s", change.Mul(decimal.NewFromInt(100)).StringFixed(1), prev.close, p.close),
				})
			}
		}

		if avg, ok := average(volumes); ok && avg.IsPositive() {
			ratio := p.volume.Div(avg)
			if ratio.GreaterThan(v.thresholds.VolumeSurge) {
				results.add(Anomaly{
					Type:     AnomalyTypeVolumeSurge,
					Severity: SeverityLow,
					OpenTime: c.OpenTime,
					Message:  fmt.Sprintf("volume %s is %sx the recent average", p.volume, ratio.StringFixed(1)),
				})
			}
		}

		volumes = append(volumes, p.volume)
		if w := v.thresholds.VolumeWindow; w > 0 && len(volumes) > w {
			volumes = volumes[1:]
		}
		prev = p
	}

	return results, nil
}

// Log writes a summary of results and one debug line per anomaly
func (v *Validator) Log(results *Results) {
	if results.Clean() {
		v.logger.Info("candle validation passed", "checked", results.Checked)
		return
	}

	attrs := []any{"checked", results.Checked, "anomalies", len(results.Anomalies)}
	for t, n := range results.ByType {
		attrs = append(attrs, string(t), n)
	}
	v.logger.Warn("candle validation found anomalies", attrs...)

	for _, a := range results.Anomalies {
		v.logger.Debug("candle anomaly",
			"type", a.Type,
			"severity", a.Severity,
			"open_time", a.OpenTime,
			"message", a.Message)
	}
}

func (r *Results) add(a Anomaly) {
	r.Anomalies = append(r.Anomalies, a)
	r.ByType[a.Type]++
}

func parse(c *models.Candle) (*parsed, error) {
	open, err := c.GetOpenDecimal()
	if err != nil {
		return nil, fmt.Errorf("invalid open price %q: %w", c.Open, err)
	}
	high, err := c.GetHighDecimal()
	if err != nil {
		return nil, fmt.Errorf("invalid high price %q: %w", c.High, err)
	}
	low, err := c.GetLowDecimal()
	if err != nil {
		return nil, fmt.Errorf("invalid low price %q: %w", c.Low, err)
	}
	closePrice, err := c.GetCloseDecimal()
	if err != nil {
		return nil, fmt.Errorf("invalid close price %q: %w", c.Close, err)
	}
	volume, err := c.GetVolumeDecimal()
	if err != nil {
		return nil, fmt.Errorf("invalid volume %q: %w", c.Volume, err)
	}
	return &parsed{open: open, high: high, low: low, close: closePrice, volume: volume}, nil
}

// logicalAnomalies checks High >= max(Open, Close), Low <= min(Open, Close),
// High >= Low and non-negative values
func logicalAnomalies(openTime int64, p *parsed) []Anomaly {
	var anomalies []Anomaly

	bodyHigh := decimal.Max(p.open, p.close)
	bodyLow := decimal.Min(p.open, p.close)

	if p.high.LessThan(p.low) {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyTypeHighBelowLow,
			Severity: SeverityCritical,
			OpenTime: openTime,
			Message:  fmt.Sprintf("high %s below low %s", p.high, p.low),
		})
	}
	if p.high.LessThan(bodyHigh) {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyTypeHighBelowBody,
			Severity: SeverityHigh,
			OpenTime: openTime,
			Message:  fmt.Sprintf("high %s below max(open, close) %s", p.high, bodyHigh),
		})
	}
	if p.low.GreaterThan(bodyLow) {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyTypeLowAboveBody,
			Severity: SeverityHigh,
			OpenTime: openTime,
			Message:  fmt.Sprintf("low %s above min(open, close) %s", p.low, bodyLow),
		})
	}
	if p.open.IsNegative() || p.high.IsNegative() || p.low.IsNegative() || p.close.IsNegative() || p.volume.IsNegative() {
		anomalies = append(anomalies, Anomaly{
			Type:     AnomalyTypeNegative,
			Severity: SeverityCritical,
			OpenTime: openTime,
			Message:  "negative price or volume",
		})
	}

	return anomalies
}

func average(values []decimal.Decimal) (decimal.Decimal, bool) {
	if len(values) == 0 {
		return decimal.Zero, false
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values)))), true
}
