// Package planner splits a download range into the window start timestamps
// requested one page at a time.
package planner

import "fmt"

// Step returns the width in seconds of one window of pageSize candles
func Step(interval, pageSize int) int64 {
	return int64(pageSize) * int64(interval) * 60
}

// Plan returns every window start in [start, end) spaced by Step. A range
// with start >= end yields no windows and no error.
func Plan(start, end int64, interval, pageSize int) ([]int64, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be greater than 0, got %d", interval)
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be greater than 0, got %d", pageSize)
	}
	if start >= end {
		return []int64{}, nil
	}

	step := Step(interval, pageSize)
	windows := make([]int64, 0, (end-start+step-1)/step)
	for from := start; from < end; from += step {
		windows = append(windows, from)
	}
	return windows, nil
}
