package clients

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/metrics"
)

type endpointKey struct{}

// withEndpoint tags ctx with a low-cardinality endpoint label such as
// "people/{id}/work" for metrics and logs.
func withEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey{}, endpoint)
}

func endpointLabel(req *http.Request) string {
	if label, ok := req.Context().Value(endpointKey{}).(string); ok && label != "" {
		return label
	}
	return req.URL.Path
}

// HTTPMetrics tracks per-attempt request counts and latencies in process,
// alongside the Prometheus collectors in pkg/metrics.
type HTTPMetrics struct {
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64

	latencySamples []time.Duration
	sampleIndex    int
	sampleCount    int

	errorsByStatus map[string]int64

	mu sync.RWMutex
}

// NewHTTPMetrics creates a tracker keeping the last 1000 latency samples.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		latencySamples: make([]time.Duration, 1000),
		errorsByStatus: make(map[string]int64),
	}
}

// RecordRequest records one attempt. status is the response code, or
// "error" when the attempt failed in transport.
func (hm *HTTPMetrics) RecordRequest(method, endpoint, status string, failed bool, latency time.Duration) {
	atomic.AddInt64(&hm.totalRequests, 1)
	if failed {
		atomic.AddInt64(&hm.failedRequests, 1)
	} else {
		atomic.AddInt64(&hm.successfulRequests, 1)
	}

	metrics.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	metrics.RequestDuration.WithLabelValues(method, endpoint).Observe(latency.Seconds())

	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.latencySamples[hm.sampleIndex] = latency
	hm.sampleIndex = (hm.sampleIndex + 1) % len(hm.latencySamples)
	if hm.sampleCount < len(hm.latencySamples) {
		hm.sampleCount++
	}
	if failed {
		hm.errorsByStatus[status]++
	}
}

// GetAverageLatency returns the average latency
func (hm *HTTPMetrics) GetAverageLatency() time.Duration {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	if hm.sampleCount == 0 {
		return 0
	}
	var total time.Duration
	for _, sample := range hm.latencySamples[:hm.sampleCount] {
		total += sample
	}
	return total / time.Duration(hm.sampleCount)
}

// GetP95Latency returns the 95th percentile latency
func (hm *HTTPMetrics) GetP95Latency() time.Duration {
	return hm.getPercentileLatency(0.95)
}

func (hm *HTTPMetrics) getPercentileLatency(percentile float64) time.Duration {
	hm.mu.RLock()
	samples := make([]time.Duration, hm.sampleCount)
	copy(samples, hm.latencySamples[:hm.sampleCount])
	hm.mu.RUnlock()

	if len(samples) == 0 {
		return 0
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i] < samples[j]
	})
	return samples[int(float64(len(samples)-1)*percentile)]
}

// GetErrorStats returns failed attempt counts keyed by status
func (hm *HTTPMetrics) GetErrorStats() map[string]int64 {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	out := make(map[string]int64, len(hm.errorsByStatus))
	for k, v := range hm.errorsByStatus {
		out[k] = v
	}
	return out
}

// instrumentedTransport records every attempt that reaches the network.
type instrumentedTransport struct {
	base    http.RoundTripper
	metrics *HTTPMetrics
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	latency := time.Since(start)

	status := "error"
	failed := true
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
		failed = resp.StatusCode >= http.StatusBadRequest
	}
	t.metrics.RecordRequest(req.Method, endpointLabel(req), status, failed, latency)
	return resp, err
}
