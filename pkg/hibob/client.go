// Package hibob implements the HiBob API calls used by the extractor on top
// of the rate limited, retrying client in pkg/clients.
package hibob

import (
	"context"
	"net/url"
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/clients"
	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	"github.com/ajitpratap0/hibob-extractor/pkg/models"
	"go.uber.org/zap"
)

// HumanReadableReplace asks the search endpoint to return display values in
// place of raw ids.
const HumanReadableReplace = "REPLACE"

const searchPath = "people/search"

// SubResource names a per-employee detail endpoint.
type SubResource string

// Supported sub-resources.
const (
	Employment SubResource = "employment"
	Lifecycle  SubResource = "lifecycle"
	Work       SubResource = "work"
)

// Valid reports whether k is one of the supported sub-resources.
func (k SubResource) Valid() bool {
	switch k {
	case Employment, Lifecycle, Work:
		return true
	}
	return false
}

// ListOptions shape the employee search.
type ListOptions struct {
	HumanReadable bool
	// Fields restricts the returned field paths; empty means the API default
	Fields []string
}

// Config configures a Client.
type Config struct {
	Credentials Credentials
	// HTTP settings; BaseURL defaults to the public API
	HTTP *clients.HTTPConfig
	// RateLimit detail calls are allowed per RateWindow
	RateLimit  int
	RateWindow time.Duration
	// Clock drives backoff and throttling; nil means the real clock
	Clock clients.Clock
}

// DefaultBaseURL is the HiBob public API root.
const DefaultBaseURL = "https://api.hibob.com/v1/"

// Client talks to the HiBob API.
type Client struct {
	http    *clients.HTTPClient
	limiter clients.RateLimiter
	logger  *zap.Logger
}

// NewClient builds a client authenticating with cfg.Credentials.
// Extra options are passed to the underlying HTTP client.
func NewClient(cfg Config, logger *zap.Logger, opts ...clients.Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpCfg := clients.DefaultHTTPConfig()
	if cfg.HTTP != nil {
		copied := *cfg.HTTP
		httpCfg = &copied
	}
	if httpCfg.BaseURL == "" {
		httpCfg.BaseURL = DefaultBaseURL
	}
	headers := make(map[string]string, len(httpCfg.DefaultHeaders)+2)
	for k, v := range httpCfg.DefaultHeaders {
		headers[k] = v
	}
	headers["Authorization"] = cfg.Credentials.AuthorizationHeader()
	headers["Accept"] = "application/json"
	httpCfg.DefaultHeaders = headers

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.Clock != nil {
		opts = append([]clients.Option{clients.WithClock(cfg.Clock)}, opts...)
	}

	httpClient, err := clients.NewHTTPClient(httpCfg, logger, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid API client configuration")
	}

	return &Client{
		http:    httpClient,
		limiter: clients.NewSlidingWindowRateLimiter(cfg.RateLimit, cfg.RateWindow, cfg.Clock),
		logger:  logger.With(zap.String("component", "hibob_client")),
	}, nil
}

type searchRequest struct {
	ShowInactive  bool     `json:"showInactive"`
	Fields        []string `json:"fields,omitempty"`
	HumanReadable string   `json:"humanReadable,omitempty"`
}

type probeRequest struct {
	Fields []string `json:"fields"`
}

// TestConnection probes the search endpoint with a minimal field list and
// reports whether it answered with a success status. Errors are logged,
// never returned.
func (c *Client) TestConnection(ctx context.Context) bool {
	err := c.http.PostJSON(ctx, searchPath, probeRequest{Fields: []string{"About"}}, nil)
	if err != nil {
		c.logger.Info("connection test failed", zap.Error(err))
		return false
	}
	return true
}

// ListEmployees runs the employee search. The API returns the full result
// in one response; the returned iterator walks it once.
func (c *Client) ListEmployees(ctx context.Context, opts ListOptions) (*Employees, error) {
	body := searchRequest{
		ShowInactive: true,
		Fields:       opts.Fields,
	}
	if opts.HumanReadable {
		body.HumanReadable = HumanReadableReplace
	}

	var resp struct {
		Employees []*models.Record `json:"employees"`
	}
	if err := c.http.PostJSON(ctx, searchPath, body, &resp); err != nil {
		return nil, errors.NewClientError(searchPath, err)
	}
	return newEmployees(resp.Employees), nil
}

// FetchSubResource returns the "values" of people/{employeeID}/{kind}, or an
// empty slice if the response has none. Calls are rate limited.
func (c *Client) FetchSubResource(ctx context.Context, kind SubResource, employeeID string) ([]*models.Record, error) {
	path := "people/" + url.PathEscape(employeeID) + "/" + string(kind)
	if !kind.Valid() {
		return nil, errors.NewConfigError("unsupported sub-resource %q", kind)
	}

	var resp struct {
		Values []*models.Record `json:"values"`
	}
	err := c.http.GetJSON(ctx, path, &resp,
		clients.WithRateLimiter(c.limiter),
		clients.WithEndpointLabel("people/{id}/"+string(kind)),
	)
	if err != nil {
		return nil, errors.NewClientError(path, err)
	}

	values := make([]*models.Record, 0, len(resp.Values))
	for _, v := range resp.Values {
		if v != nil {
			values = append(values, v)
		}
	}
	return values, nil
}

// Stats returns transport statistics for the run summary.
func (c *Client) Stats() clients.HTTPStats {
	return c.http.GetStats()
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}
