// Package exchange defines the page-fetching interface used by the downloader
// and its Bybit implementation.
//
// A fetcher returns provider-native candle entries untouched. Turning entries
// into candle records is left to the assembler, so the fetcher only needs to
// know how to reach the endpoint and when a response counts as a success.
package exchange

import (
	"context"

	"github.com/tidwall/gjson"
)

// PageFetcher retrieves one page of candles starting at a window timestamp.
//
// Implementations should:
// - Retry failed requests according to their retry policy
// - Honour context cancellation while waiting between attempts
// - Return entries in the order the provider sent them
//
// An empty page is not an error.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// PageRequest identifies one page of candles.
type PageRequest struct {
	// Symbol is the asset symbol, e.g. BTCUSD
	Symbol string `json:"symbol"`

	// Interval is the candle interval in minutes
	Interval int `json:"interval"`

	// Limit is the maximum number of candles returned
	Limit int `json:"limit"`

	// From is the window start in seconds since the epoch
	From int64 `json:"from"`
}

// Page is a successful page response.
type Page struct {
	// Entries are the provider-native candle objects in response order
	Entries []gjson.Result

	// Attempts is the number of requests issued to obtain the page
	Attempts int
}

// Validate checks if the PageRequest has valid parameters.
func (r *PageRequest) Validate() error {
	if r.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}

	if r.Interval <= 0 {
		return &ValidationError{Field: "interval", Message: "interval must be positive"}
	}

	if r.Limit <= 0 {
		return &ValidationError{Field: "limit", Message: "limit must be positive"}
	}

	if r.From < 0 {
		return &ValidationError{Field: "from", Message: "from cannot be negative"}
	}

	return nil
}

// ValidationError represents a validation error for exchange types.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation error for field " + e.Field + ": " + e.Message
}
