package clients

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultRetryStatuses are the response codes treated as transient.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	// MaxAttempts counts the first attempt
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RetryStatuses lists response codes worth another attempt
	RetryStatuses []int
	// RespectRetryAfter uses the server's Retry-After header when present
	RespectRetryAfter bool
}

// NewRetryPolicy creates a new retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialDelay:      initialDelay,
		MaxDelay:          maxDelay,
		Multiplier:        2.0,
		RetryStatuses:     DefaultRetryStatuses,
		RespectRetryAfter: true,
	}
}

// DefaultRetryPolicy returns ten attempts starting at 300ms, capped at two minutes.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(10, 300*time.Millisecond, 2*time.Minute)
}

// NoRetryPolicy returns a policy that doesn't retry
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// ShouldRetryStatus reports whether code is in the retryable set.
func (rp *RetryPolicy) ShouldRetryStatus(code int) bool {
	for _, s := range rp.RetryStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// Delay returns the backoff to wait after the given failed attempt (1-based).
func (rp *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := rp.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(rp.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}
	return time.Duration(delay)
}

// RetryExhaustedError is returned once the last allowed attempt failed
// with a retryable status or transport error.
type RetryExhaustedError struct {
	Method     string
	URL        string
	Attempts   int
	StatusCode int // zero when the last attempt failed in transport
	Err        error
}

func (e *RetryExhaustedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: giving up after %d attempts: last status %d", e.Method, e.URL, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: giving up after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// RetryingTransport is an http.RoundTripper that repeats requests failing
// with a retryable status or a transport error. Requests with a body must
// set GetBody, which http.NewRequest does for in-memory readers.
type RetryingTransport struct {
	Base   http.RoundTripper
	Policy *RetryPolicy
	Clock  Clock
	Logger *zap.Logger
	// AttemptTimeout bounds each attempt, including reading its body
	AttemptTimeout time.Duration
}

// RoundTrip implements http.RoundTripper
func (t *RetryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	policy := t.Policy
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	clock := t.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := req.Context()
	endpoint := endpointLabel(req)

	for attempt := 1; ; attempt++ {
		attemptReq, cancel, err := t.prepareAttempt(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.base().RoundTrip(attemptReq)
		if err == nil && !policy.ShouldRetryStatus(resp.StatusCode) {
			if cancel != nil {
				resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			}
			return resp, nil
		}
		if err != nil && ctx.Err() != nil {
			// caller gave up; not a transient failure
			if cancel != nil {
				cancel()
			}
			return nil, err
		}

		status, reason := 0, "transport"
		if resp != nil {
			status = resp.StatusCode
			reason = strconv.Itoa(status)
		}

		if attempt >= maxAttempts {
			drain(resp)
			if cancel != nil {
				cancel()
			}
			metrics.RetriesExhausted.WithLabelValues(endpoint).Inc()
			return nil, &RetryExhaustedError{
				Method:     req.Method,
				URL:        req.URL.String(),
				Attempts:   attempt,
				StatusCode: status,
				Err:        err,
			}
		}

		delay := policy.Delay(attempt)
		if policy.RespectRetryAfter && resp != nil {
			if d, ok := retryAfter(resp.Header.Get("Retry-After"), clock.Now()); ok {
				delay = d
				if policy.MaxDelay > 0 && delay > policy.MaxDelay {
					delay = policy.MaxDelay
				}
			}
		}
		drain(resp)
		if cancel != nil {
			cancel()
		}

		metrics.HTTPRetries.WithLabelValues(endpoint, reason).Inc()
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("status", status))
		}
		logger.Warn("retrying request", fields...)

		if err := clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (t *RetryingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// prepareAttempt clones req with a fresh body and, if configured, its own deadline.
func (t *RetryingTransport) prepareAttempt(req *http.Request, attempt int) (*http.Request, context.CancelFunc, error) {
	ctx := req.Context()
	var cancel context.CancelFunc
	if t.AttemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.AttemptTimeout)
	}

	out := req
	if attempt > 1 || cancel != nil {
		out = req.Clone(ctx)
	}
	if attempt > 1 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			if cancel != nil {
				cancel()
			}
			return nil, nil, fmt.Errorf("%s %s: request body cannot be replayed", req.Method, req.URL)
		}
		body, err := req.GetBody()
		if err != nil {
			if cancel != nil {
				cancel()
			}
			return nil, nil, err
		}
		out.Body = body
	}
	return out, cancel, nil
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// drain discards a response so its connection can be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
