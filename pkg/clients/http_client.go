package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/json"
	"github.com/ajitpratap0/hibob-extractor/pkg/observability"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// HTTPClient is a JSON client bound to one base URL. Every request carries
// the configured default headers and goes through a RetryingTransport.
type HTTPClient struct {
	config     *HTTPConfig
	baseURL    *url.URL
	logger     *zap.Logger
	clock      Clock
	httpClient *http.Client
	transport  http.RoundTripper

	metrics *HTTPMetrics

	totalCalls     int64
	failedCalls    int64
	throttledCalls int64
	throttleWait   int64 // nanoseconds
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	BaseURL        string            `json:"base_url"`
	DefaultHeaders map[string]string `json:"-"`
	UserAgent      string            `json:"user_agent"`

	// RequestTimeout bounds a single attempt
	RequestTimeout time.Duration `json:"request_timeout"`
	Retry          *RetryPolicy  `json:"-"`

	// Connection settings
	EnableHTTP2         bool          `json:"enable_http2"`
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout"`
	KeepAlive           time.Duration `json:"keep_alive"`
}

// DefaultHTTPConfig returns default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		UserAgent:           "hibob-extractor/1.0",
		RequestTimeout:      60 * time.Second,
		Retry:               DefaultRetryPolicy(),
		EnableHTTP2:         true,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithClock replaces the clock used for backoff sleeps.
func WithClock(clock Clock) Option {
	return func(c *HTTPClient) { c.clock = clock }
}

// WithTransport replaces the network transport under the retry layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) { c.transport = rt }
}

// NewHTTPClient creates a client for config.BaseURL.
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger, opts ...Option) (*HTTPClient, error) {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", config.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	client := &HTTPClient{
		config:  config,
		baseURL: base,
		logger:  logger.With(zap.String("component", "http_client")),
		clock:   RealClock(),
		metrics: NewHTTPMetrics(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.transport == nil {
		client.transport = client.newTransport()
	}

	client.httpClient = &http.Client{
		Transport: &RetryingTransport{
			Base:           &instrumentedTransport{base: client.transport, metrics: client.metrics},
			Policy:         config.Retry,
			Clock:          client.clock,
			Logger:         client.logger,
			AttemptTimeout: config.RequestTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
	return client, nil
}

func (c *HTTPClient) newTransport() http.RoundTripper {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   c.config.DialTimeout,
			KeepAlive: c.config.KeepAlive,
		}).DialContext,
		MaxIdleConns:          c.config.MaxIdleConns,
		MaxIdleConnsPerHost:   c.config.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.config.IdleConnTimeout,
		TLSHandshakeTimeout:   c.config.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if c.config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			c.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		} else {
			c.logger.Debug("HTTP/2 enabled")
		}
	}
	return transport
}

// StatusError reports a final response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

type requestOptions struct {
	limiter  RateLimiter
	endpoint string
}

// RequestOption customizes a single call.
type RequestOption func(*requestOptions)

// WithRateLimiter makes the call wait on rl once before its first attempt.
// Retries of the same call do not consume extra capacity.
func WithRateLimiter(rl RateLimiter) RequestOption {
	return func(o *requestOptions) { o.limiter = rl }
}

// WithEndpointLabel sets the label used for metrics, logs and spans in
// place of the concrete path.
func WithEndpointLabel(label string) RequestOption {
	return func(o *requestOptions) { o.endpoint = label }
}

// GetJSON issues a GET for path and decodes the body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// PostJSON posts body as JSON to path and decodes the response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// Do performs one logical call: rate limiting, retries, status check and
// JSON decoding. path is resolved against the base URL. A nil out discards
// the response body.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body, out interface{}, opts ...RequestOption) (err error) {
	o := requestOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.endpoint == "" {
		o.endpoint = path
	}

	ctx, span := observability.StartSpan(ctx, "http.request",
		observability.Attr("http.method", method),
		observability.Attr("hibob.endpoint", o.endpoint),
	)
	defer func() { observability.EndSpan(span, err) }()

	atomic.AddInt64(&c.totalCalls, 1)
	defer func() {
		if err != nil {
			atomic.AddInt64(&c.failedCalls, 1)
		}
	}()

	if o.limiter != nil {
		start := c.clock.Now()
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		if waited := c.clock.Now().Sub(start); waited > 0 {
			atomic.AddInt64(&c.throttledCalls, 1)
			atomic.AddInt64(&c.throttleWait, int64(waited))
			c.logger.Debug("throttled by rate limiter",
				zap.String("endpoint", o.endpoint),
				zap.Duration("wait", waited))
		}
	}

	req, release, err := c.newRequest(withEndpoint(ctx, o.endpoint), method, path, body)
	if err != nil {
		return err
	}
	defer release()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method:     method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.Decode(resp.Body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, req.URL, err)
	}
	return nil
}

// newRequest builds the request. release returns pooled buffers and must
// be called once the response has been consumed.
func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, func(), error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, nil, err
	}

	release := func() {}
	var reader io.Reader
	if body != nil {
		buf, err := json.EncodeToBuffer(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf.Bytes())
		release = func() { json.PutBuffer(buf) }
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		release()
		return nil, nil, err
	}

	for key, value := range c.config.DefaultHeaders {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	return req, release, nil
}

func (c *HTTPClient) resolve(path string) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() HTTPStats {
	total := atomic.LoadInt64(&c.totalCalls)
	failed := atomic.LoadInt64(&c.failedCalls)

	attempts := atomic.LoadInt64(&c.metrics.totalRequests)
	stats := HTTPStats{
		TotalCalls:     total,
		FailedCalls:    failed,
		Attempts:       attempts,
		ThrottledCalls: atomic.LoadInt64(&c.throttledCalls),
		ThrottleWait:   time.Duration(atomic.LoadInt64(&c.throttleWait)),
		AverageLatency: c.metrics.GetAverageLatency(),
		P95Latency:     c.metrics.GetP95Latency(),
		ErrorsByStatus: c.metrics.GetErrorStats(),
	}
	if attempts > total {
		stats.Retries = attempts - total
	}
	return stats
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	if t, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalCalls     int64         `json:"total_calls"`
	FailedCalls    int64         `json:"failed_calls"`
	Attempts       int64         `json:"attempts"`
	Retries        int64         `json:"retries"`
	ThrottledCalls int64         `json:"throttled_calls"`
	ThrottleWait   time.Duration `json:"throttle_wait"`
	AverageLatency time.Duration `json:"average_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	// ErrorsByStatus counts failed attempts by status code or "error"
	ErrorsByStatus map[string]int64 `json:"errors_by_status"`
}
