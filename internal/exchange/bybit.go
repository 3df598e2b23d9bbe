package exchange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/victorl2/trade-optimizer/internal/config"
	apperrors "github.com/victorl2/trade-optimizer/internal/errors"
	"golang.org/x/time/rate"
)

const (
	// Bybit public API base URL
	bybitBaseURL = "https://api.bybit.com"

	// Kline list endpoint of the v2 public API
	klineEndpoint = "/v2/public/kline/list"

	// Request configuration
	requestTimeout = 30 * time.Second
	userAgent      = "trade-optimizer-klines/1.0"
	maxBodyBytes   = 8 << 20
)

// BybitAdapter fetches kline pages from the Bybit public API.
type BybitAdapter struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retry       *apperrors.RetryPolicy
	baseURL     string
	logger      *slog.Logger
}

// NewBybitAdapter creates an adapter from exchange configuration. Every
// attempt, retries included, waits on a limiter spaced by RequestDelay.
func NewBybitAdapter(cfg config.ExchangeConfig, retry *apperrors.RetryPolicy, logger *slog.Logger) *BybitAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if retry == nil {
		retry = apperrors.NewRetryPolicy(config.DefaultConfig().Retry, logger)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = bybitBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &BybitAdapter{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(limit, 1),
		retry:       retry,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// FetchPage implements the PageFetcher interface.
func (b *BybitAdapter) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	requestURL := b.pageURL(req)
	b.logger.Debug("fetching kline page",
		"symbol", req.Symbol,
		"interval", req.Interval,
		"from", req.From,
		"limit", req.Limit)

	var entries []gjson.Result
	result, err := b.retry.Do(ctx, "fetch kline page", func(attempt int) error {
		if err := b.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}

		body, err := b.get(ctx, requestURL)
		if err != nil {
			return err
		}

		entries, err = parseKlineList(requestURL, body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch window %d: %w", req.From, err)
	}

	return &Page{Entries: entries, Attempts: result.Attempts}, nil
}

func (b *BybitAdapter) pageURL(req PageRequest) string {
	params := url.Values{}
	params.Add("symbol", req.Symbol)
	params.Add("interval", strconv.Itoa(req.Interval))
	params.Add("limit", strconv.Itoa(req.Limit))
	params.Add("from", strconv.FormatInt(req.From, 10))

	return b.baseURL + klineEndpoint + "?" + params.Encode()
}

// get issues one request. Non-200 statuses and transport errors come back as
// *errors.FetchFailure; a cancelled context comes back as is.
func (b *BybitAdapter) get(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewTransportFailure(requestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, apperrors.NewStatusFailure(requestURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewTransportFailure(requestURL, fmt.Errorf("failed to read response body: %w", err))
	}

	return body, nil
}

// parseKlineList extracts the result array of a kline list response. A null or
// missing result is an empty page.
func parseKlineList(requestURL string, body []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, &apperrors.FetchFailure{
			URL:  requestURL,
			Type: apperrors.ErrorTypeInvalidPayload,
			Err:  fmt.Errorf("response body is not valid JSON"),
		}
	}

	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("ret_code"); code.Exists() && code.Int() != 0 {
		return nil, &apperrors.FetchFailure{
			URL:  requestURL,
			Type: apperrors.ErrorTypeBadRequest,
			Err:  fmt.Errorf("api error %d: %s", code.Int(), parsed.Get("ret_msg").String()),
		}
	}

	result := parsed.Get("result")
	switch {
	case !result.Exists() || result.Type == gjson.Null:
		return []gjson.Result{}, nil
	case !result.IsArray():
		return nil, &apperrors.FetchFailure{
			URL:  requestURL,
			Type: apperrors.ErrorTypeInvalidPayload,
			Err:  fmt.Errorf("result is not a list"),
		}
	}

	return result.Array(), nil
}
