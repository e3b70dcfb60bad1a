package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/metrics"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/logger"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultBackoff   = 30 * time.Second
	DefaultAttempts  = 3
	DefaultUserAgent = "NVD-ETL-Connector/1.0"

	maxErrorBody = 512
)

// RetryPolicy decides how often and after which statuses a fetch is repeated.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(status int) bool
}

// RateLimitOnly retries HTTP 429 and nothing else.
func RateLimitOnly(status int) bool {
	return status == http.StatusTooManyRequests
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultAttempts,
		Backoff:     DefaultBackoff,
		Retryable:   RateLimitOnly,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(status int) bool {
	if p.Retryable == nil {
		return RateLimitOnly(status)
	}
	return p.Retryable(status)
}

// ExtractorConfig configures an HTTPExtractor.
type ExtractorConfig struct {
	// Timeout bounds each attempt, not the whole retry sequence.
	Timeout time.Duration

	UserAgent string

	// APIKey is sent as the "apiKey" header, which the 2.0 API reads.
	APIKey string

	Retry RetryPolicy

	// RequestsPerSecond paces requests across endpoints; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int

	Transport http.RoundTripper
}

func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		Retry:     DefaultRetryPolicy(),
	}
}

// HTTPExtractor performs GETs against the upstream API.
type HTTPExtractor struct {
	client    *http.Client
	userAgent string
	apiKey    string
	retry     RetryPolicy
	limiter   *rate.Limiter
	sleeper   Sleeper
	metrics   *metrics.Metrics
}

// Option configures an HTTPExtractor.
type Option func(*HTTPExtractor)

func WithSleeper(s Sleeper) Option {
	return func(e *HTTPExtractor) { e.sleeper = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *HTTPExtractor) { e.metrics = m }
}

func NewHTTPExtractor(cfg ExtractorConfig, opts ...Option) *HTTPExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if cfg.Burst > 0 {
			burst = cfg.Burst
		}
	}

	e := &HTTPExtractor{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		userAgent: cfg.UserAgent,
		apiKey:    cfg.APIKey,
		retry:     cfg.Retry,
		limiter:   rate.NewLimiter(limit, burst),
		sleeper:   RealSleeper,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch GETs rawURL and decodes the JSON object it returns. Only statuses the
// retry policy accepts are retried, with a fixed pause between attempts.
func (e *HTTPExtractor) Fetch(ctx context.Context, endpoint, rawURL string) (models.RawResponse, error) {
	log := logger.With("endpoint", endpoint)
	attempts := e.retry.attempts()

	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			log.Info("retryable status, backing off", "status", lastErr.StatusCode, "wait", e.retry.Backoff.String(), "next_attempt", attempt)
			e.sleeper.Sleep(e.retry.Backoff)
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTransport, Endpoint: endpoint, Err: fmt.Errorf("rate limiter: %w", err)}
		}

		log.Info("fetching", "url", RedactURL(rawURL), "attempt", attempt, "max_attempts", attempts)
		status, body, err := e.get(ctx, rawURL)
		if err != nil {
			e.metrics.FetchAttempt(endpoint, KindTransport.String())
			log.Error("fetch failed", "error", err)
			return nil, &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
		}

		if status >= 200 && status < 300 {
			e.metrics.FetchAttempt(endpoint, "ok")
			raw, err := decodeBody(body)
			if err != nil {
				log.Error("response body is not a JSON object", "error", err)
				return nil, &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
			}
			return raw, nil
		}

		apiErr := &Error{Kind: KindHTTP, Endpoint: endpoint, StatusCode: status, Body: truncate(body, maxErrorBody)}
		if status == http.StatusTooManyRequests {
			apiErr.Kind = KindRateLimited
		}
		e.metrics.FetchAttempt(endpoint, apiErr.Kind.String())
		log.Error("upstream returned an error status", "status", status, "attempt", attempt)

		if !e.retry.retryable(status) {
			return nil, apiErr
		}
		lastErr = apiErr
	}

	return nil, lastErr
}

func (e *HTTPExtractor) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", redactError(err, rawURL))
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("apiKey", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", redactError(err, rawURL))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// redactError hides the API key in the URL that net/http puts into its errors.
func redactError(err error, rawURL string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = RedactURL(rawURL)
	}
	return err
}

func decodeBody(body []byte) (models.RawResponse, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var raw models.RawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return raw, nil
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

// RedactURL hides API key query parameters so URLs can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return redactRawQuery(rawURL)
	}
	q := u.Query()
	changed := false
	for k := range q {
		if strings.EqualFold(k, "apikey") || strings.EqualFold(k, "api_key") {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// redactRawQuery masks key parameters in a URL that does not parse.
func redactRawQuery(rawURL string) string {
	i := strings.IndexByte(rawURL, '?')
	if i < 0 {
		return rawURL
	}
	pairs := strings.Split(rawURL[i+1:], "&")
	for j, p := range pairs {
		k, _, _ := strings.Cut(p, "=")
		if strings.EqualFold(k, "apikey") || strings.EqualFold(k, "api_key") {
			pairs[j] = k + "=REDACTED"
		}
	}
	return rawURL[:i+1] + strings.Join(pairs, "&")
}
