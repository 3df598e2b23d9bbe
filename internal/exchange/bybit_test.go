package exchange

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorl2/trade-optimizer/internal/config"
	apperrors "github.com/victorl2/trade-optimizer/internal/errors"
)

// Test fixtures based on the Bybit v2 kline list payload
const (
	testFrom = int64(1598918400) // 2020-09-01 00:00:00 UTC

	validKlineResponse = `{
		"ret_code": 0,
		"ret_msg": "OK",
		"result": [
			{"symbol": "BTCUSD", "interval": "1", "open_time": 1598918400, "open": "11649.5", "high": "11655", "low": "11640", "close": "11650", "volume": "1234567", "turnover": "105.96"},
			{"symbol": "BTCUSD", "interval": "1", "open_time": 1598918460, "open": "11650", "high": "11660.5", "low": "11648", "close": "11659", "volume": "987654", "turnover": "84.71"}
		]
	}`

	apiErrorResponse = `{"ret_code": 10001, "ret_msg": "invalid symbol", "result": null}`
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRetryConfig(maxAttempts int) config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:  maxAttempts,
		Strategy:     "fixed",
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	}
}

func newTestAdapter(serverURL string, maxAttempts int, delay time.Duration) *BybitAdapter {
	logger := createTestLogger()
	return NewBybitAdapter(config.ExchangeConfig{
		BaseURL:      serverURL,
		Timeout:      time.Second,
		RequestDelay: delay,
	}, apperrors.NewRetryPolicy(testRetryConfig(maxAttempts), logger), logger)
}

func testRequest() PageRequest {
	return PageRequest{Symbol: "BTCUSD", Interval: 1, Limit: 200, From: testFrom}
}

func TestBybitAdapter_FetchPage(t *testing.T) {
	var gotQuery atomicQuery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, klineEndpoint, r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		gotQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(validKlineResponse))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL, 3, 0)
	page, err := adapter.FetchPage(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, page.Attempts)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, int64(1598918400), page.Entries[0].Get("open_time").Int())
	assert.Equal(t, "11649.5", page.Entries[0].Get("open").String())
	assert.Equal(t, int64(1598918460), page.Entries[1].Get("open_time").Int())

	assert.Equal(t, "from=1598918400&interval=1&limit=200&symbol=BTCUSD", gotQuery.Load())
}

func TestBybitAdapter_RetriesUntilSuccess(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(validKlineResponse))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL, 0, 0)
	page, err := adapter.FetchPage(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.Equal(t, 3, page.Attempts)
	assert.Len(t, page.Entries, 2)
}

func TestBybitAdapter_DefaultRetryPolicyIsUnbounded(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) <= 12 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(validKlineResponse))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Exchange.BaseURL = server.URL
	cfg.Exchange.RequestDelay = 0
	cfg.Retry.InitialDelay = time.Millisecond

	logger := createTestLogger()
	adapter := NewBybitAdapter(cfg.Exchange, apperrors.NewRetryPolicy(cfg.Retry, logger), logger)

	page, err := adapter.FetchPage(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(13), atomic.LoadInt32(&requests))
	assert.Equal(t, 13, page.Attempts)
}

func TestBybitAdapter_RetriesEveryStatusIdentically(t *testing.T) {
	statuses := []int{http.StatusTooManyRequests, http.StatusBadRequest, http.StatusForbidden, http.StatusBadGateway}

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if int(n) <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		_, _ = w.Write([]byte(validKlineResponse))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL, 0, 0)
	page, err := adapter.FetchPage(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, len(statuses)+1, page.Attempts)
}

func TestBybitAdapter_Exhausted(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL, 3, 0)
	_, err := adapter.FetchPage(context.Background(), testRequest())
	require.Error(t, err)

	var exhausted *apperrors.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))

	var failure *apperrors.FetchFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, http.StatusServiceUnavailable, failure.StatusCode)
	assert.Equal(t, apperrors.ErrorTypeServerError, failure.Type)
}

func TestBybitAdapter_PayloadHandling(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantEntries int
		wantType    apperrors.ErrorType
	}{
		{name: "null result is empty", body: `{"ret_code":0,"result":null}`, wantEntries: 0},
		{name: "empty result", body: `{"ret_code":0,"result":[]}`, wantEntries: 0},
		{name: "missing ret_code", body: `{"result":[{"open_time":1}]}`, wantEntries: 1},
		{name: "api error", body: apiErrorResponse, wantType: apperrors.ErrorTypeBadRequest},
		{name: "invalid json", body: `{"result": [`, wantType: apperrors.ErrorTypeInvalidPayload},
		{name: "result not a list", body: `{"result": {"open_time": 1}}`, wantType: apperrors.ErrorTypeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := newTestAdapter(server.URL, 2, 0)
			page, err := adapter.FetchPage(context.Background(), testRequest())

			if tt.wantType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantType, apperrors.GetErrorType(err))
				return
			}

			require.NoError(t, err)
			assert.Len(t, page.Entries, tt.wantEntries)
		})
	}
}

func TestBybitAdapter_RequestDelay(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(validKlineResponse))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL, 0, 30*time.Millisecond)

	started := time.Now()
	_, err := adapter.FetchPage(context.Background(), testRequest())
	require.NoError(t, err)

	// three attempts are spaced by two limiter waits
	assert.GreaterOrEqual(t, time.Since(started), 55*time.Millisecond)
}

func TestBybitAdapter_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL, 0, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := adapter.FetchPage(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var exhausted *apperrors.ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestBybitAdapter_InvalidRequest(t *testing.T) {
	adapter := newTestAdapter("http://127.0.0.1:0", 1, 0)

	tests := []struct {
		name  string
		req   PageRequest
		field string
	}{
		{"empty symbol", PageRequest{Interval: 1, Limit: 200}, "symbol"},
		{"zero interval", PageRequest{Symbol: "BTCUSD", Limit: 200}, "interval"},
		{"zero limit", PageRequest{Symbol: "BTCUSD", Interval: 1}, "limit"},
		{"negative from", PageRequest{Symbol: "BTCUSD", Interval: 1, Limit: 200, From: -1}, "from"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.FetchPage(context.Background(), tt.req)
			require.Error(t, err)

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

// atomicQuery records the last raw query seen by a test server
type atomicQuery struct {
	v atomic.Value
}

func (q *atomicQuery) Store(s string) { q.v.Store(s) }

func (q *atomicQuery) Load() string {
	s, _ := q.v.Load().(string)
	return s
}
