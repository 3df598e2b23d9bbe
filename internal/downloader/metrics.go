package downloader

import (
	"sync/atomic"
	"time"
)

// RunMetrics is a snapshot of the counters of one run
type RunMetrics struct {
	Windows        int64         `json:"windows"`
	Requests       int64         `json:"requests"`
	FailedAttempts int64         `json:"failed_attempts"`
	Candles        int64         `json:"candles"`
	Discarded      int64         `json:"discarded"`
	Elapsed        time.Duration `json:"elapsed"`
	AvgPageTime    time.Duration `json:"avg_page_time"`
}

// metricsCollector tracks download progress and request statistics
type metricsCollector struct {
	windows        int64
	requests       int64
	failedAttempts int64
	candles        int64
	discarded      int64

	totalPageTime int64 // nanoseconds

	startTime time.Time
}

// newMetricsCollector creates a new metrics collector
func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		startTime: time.Now(),
	}
}

// recordPage records a fetched page and the attempts it took
func (m *metricsCollector) recordPage(attempts int, duration time.Duration) {
	atomic.AddInt64(&m.windows, 1)
	atomic.AddInt64(&m.requests, int64(attempts))
	if attempts > 1 {
		atomic.AddInt64(&m.failedAttempts, int64(attempts-1))
	}
	atomic.AddInt64(&m.totalPageTime, duration.Nanoseconds())
}

// recordAssembled records the outcome of assembling one page
func (m *metricsCollector) recordAssembled(appended, discarded int) {
	atomic.AddInt64(&m.candles, int64(appended))
	atomic.AddInt64(&m.discarded, int64(discarded))
}

// snapshot returns current metrics
func (m *metricsCollector) snapshot() RunMetrics {
	windows := atomic.LoadInt64(&m.windows)
	totalPageTime := atomic.LoadInt64(&m.totalPageTime)

	var avgPageTime time.Duration
	if windows > 0 {
		avgPageTime = time.Duration(totalPageTime / windows)
	}

	return RunMetrics{
		Windows:        windows,
		Requests:       atomic.LoadInt64(&m.requests),
		FailedAttempts: atomic.LoadInt64(&m.failedAttempts),
		Candles:        atomic.LoadInt64(&m.candles),
		Discarded:      atomic.LoadInt64(&m.discarded),
		Elapsed:        time.Since(m.startTime),
		AvgPageTime:    avgPageTime,
	}
}
