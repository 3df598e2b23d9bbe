// Package timerange resolves the human-readable boundaries of a download into
// epoch timestamps and derives the output filename from them.
package timerange

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/victorl2/trade-optimizer/internal/config"
	apperrors "github.com/victorl2/trade-optimizer/internal/errors"
)

// DateLayout is the day-month-year hour:minute format used for boundaries
const DateLayout = config.DateLayout

// Range is a resolved download range. Start and End are whole seconds since
// the epoch; the date strings are their UTC display form.
type Range struct {
	Start     int64
	End       int64
	StartDate string
	EndDate   string
	Filename  string
}

// ResolveRequest carries the inputs of Resolve. An empty End means now.
type ResolveRequest struct {
	Start      string
	End        string
	Provider   string
	Asset      string
	MarketType string
	Interval   int
}

// ErrBeforeEpoch is returned for dates earlier than 01-01-1970 00:00 UTC
var ErrBeforeEpoch = errors.New("date is before 01-01-1970 00:00")

// ToTimestamp parses a DateLayout string as UTC and returns epoch seconds.
// Dates before the epoch are rejected.
func ToTimestamp(date string) (int64, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), time.UTC)
	if err != nil {
		return 0, &apperrors.ParseError{Field: "date", Value: date, Err: err}
	}
	if t.Unix() < 0 {
		return 0, &apperrors.ParseError{Field: "date", Value: date, Err: ErrBeforeEpoch}
	}
	return t.Unix(), nil
}

// ToDate formats epoch seconds as a UTC DateLayout string. Seconds are
// truncated by the layout.
func ToDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(DateLayout)
}

// Resolve converts the request boundaries into a Range. now is consulted only
// when End is empty; nil means time.Now.
func Resolve(req ResolveRequest, now func() time.Time) (*Range, error) {
	if now == nil {
		now = time.Now
	}

	start, err := ToTimestamp(req.Start)
	if err != nil {
		return nil, withField(err, "start")
	}

	var end int64
	endDate := strings.TrimSpace(req.End)
	if endDate == "" {
		end = now().Unix()
		endDate = ToDate(end)
	} else {
		end, err = ToTimestamp(endDate)
		if err != nil {
			return nil, withField(err, "end")
		}
	}

	startDate := strings.TrimSpace(req.Start)
	return &Range{
		Start:     start,
		End:       end,
		StartDate: startDate,
		EndDate:   endDate,
		Filename:  Filename(req.Provider, req.Asset, req.MarketType, req.Interval, startDate, endDate),
	}, nil
}

// Filename builds {PROVIDER}-{ASSET}-{MARKET_TYPE}-{INTERVAL}m-data-from-{START}-to-{END}.csv
// with every space replaced by an underscore.
func Filename(provider, asset, marketType string, interval int, start, end string) string {
	name := fmt.Sprintf("%s-%s-%s-%dm-data-from-%s-to-%s.csv", provider, asset, marketType, interval, start, end)
	return strings.ReplaceAll(name, " ", "_")
}

// Empty reports whether the range contains no whole window
func (r *Range) Empty() bool {
	return r.Start >= r.End
}

// ExpectedCandles returns how many candles of the given interval fit in the range
func (r *Range) ExpectedCandles(interval int) int64 {
	if interval <= 0 || r.Empty() {
		return 0
	}
	return (r.End - r.Start) / int64(interval*60)
}

func withField(err error, field string) error {
	if pe, ok := err.(*apperrors.ParseError); ok {
		pe.Field = field
	}
	return err
}
