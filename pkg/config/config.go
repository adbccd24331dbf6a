// Package config defines the extractor configuration.
//
// The configuration is organized into logical sections:
//   - Account: service user credentials
//   - Endpoints, Fields, HumanReadable: what to extract
//   - Destination and Output: how tables are written
//   - Client: retry, rate limit and transport settings
//
// Example usage:
//
//	cfg, err := config.LoadFile("data/config.json")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/compression"
	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
)

// Actions the extractor can run.
const (
	ActionRun            = "run"
	ActionTestConnection = "testConnection"
)

// Load types for the destination.
const (
	LoadTypeIncremental = "incremental_load"
	LoadTypeFull        = "full_load"
)

// Config is the root document read from the data folder.
type Config struct {
	// Action selects the run mode; empty means ActionRun
	Action     string     `yaml:"action" json:"action"`
	Parameters Parameters `yaml:"parameters" json:"parameters"`
}

// Parameters holds the user-editable settings.
type Parameters struct {
	Account AccountConfig `yaml:"account" json:"account"`
	// Endpoints lists the sub-resources to fetch per employee
	Endpoints []string `yaml:"endpoints" json:"endpoints"`
	// Fields restricts the employee search to these field paths
	Fields []string `yaml:"fields" json:"fields"`
	// HumanReadable asks the API for display values instead of ids
	HumanReadable bool              `yaml:"human_readable" json:"human_readable"`
	Destination   DestinationConfig `yaml:"destination" json:"destination"`
	Output        OutputConfig      `yaml:"output" json:"output"`
	Client        ClientConfig      `yaml:"client" json:"client"`
	Debug         bool              `yaml:"debug" json:"debug"`
}

// AccountConfig contains the service user credentials.
type AccountConfig struct {
	ServiceUserID    string `yaml:"service_user_id" json:"service_user_id"`
	ServiceUserToken string `yaml:"#service_user_token" json:"#service_user_token"`
}

// DestinationConfig controls how output tables are loaded.
type DestinationConfig struct {
	LoadType string `yaml:"load_type" json:"load_type"`
}

// OutputConfig controls the physical table files.
type OutputConfig struct {
	// Compression is one of none, gzip, zstd, snappy, s2, lz4
	Compression string `yaml:"compression" json:"compression"`
}

// ClientConfig contains HTTP client settings.
type ClientConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// MaxAttempts counts the first try
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffFactor time.Duration `yaml:"backoff_factor" json:"backoff_factor"`
	MaxBackoff    time.Duration `yaml:"max_backoff" json:"max_backoff"`
	// RateLimitCalls detail calls are allowed per RateLimitPeriod
	RateLimitCalls  int           `yaml:"rate_limit_calls" json:"rate_limit_calls"`
	RateLimitPeriod time.Duration `yaml:"rate_limit_period" json:"rate_limit_period"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	EnableHTTP2     bool          `yaml:"enable_http2" json:"enable_http2"`
}

// DefaultBaseURL is the HiBob public API root.
const DefaultBaseURL = "https://api.hibob.com/v1/"

// NewConfig returns a configuration with every default applied.
func NewConfig() *Config {
	return &Config{
		Action: ActionRun,
		Parameters: Parameters{
			Destination: DestinationConfig{LoadType: LoadTypeIncremental},
			Output:      OutputConfig{Compression: string(compression.None)},
			Client:      DefaultClientConfig(),
		},
	}
}

// DefaultClientConfig returns the client settings used when the file omits them.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:         DefaultBaseURL,
		MaxAttempts:     10,
		BackoffFactor:   300 * time.Millisecond,
		MaxBackoff:      2 * time.Minute,
		RateLimitCalls:  100,
		RateLimitPeriod: 60 * time.Second,
		RequestTimeout:  60 * time.Second,
		EnableHTTP2:     true,
	}
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	if c.Action == "" {
		c.Action = ActionRun
	}
	p := &c.Parameters
	if p.Destination.LoadType == "" {
		p.Destination.LoadType = LoadTypeIncremental
	}
	if p.Output.Compression == "" {
		p.Output.Compression = string(compression.None)
	}

	d := DefaultClientConfig()
	cc := &p.Client
	if cc.BaseURL == "" {
		cc.BaseURL = d.BaseURL
	}
	if cc.MaxAttempts == 0 {
		cc.MaxAttempts = d.MaxAttempts
	}
	if cc.BackoffFactor == 0 {
		cc.BackoffFactor = d.BackoffFactor
	}
	if cc.MaxBackoff == 0 {
		cc.MaxBackoff = d.MaxBackoff
	}
	if cc.RateLimitCalls == 0 {
		cc.RateLimitCalls = d.RateLimitCalls
	}
	if cc.RateLimitPeriod == 0 {
		cc.RateLimitPeriod = d.RateLimitPeriod
	}
	if cc.RequestTimeout == 0 {
		cc.RequestTimeout = d.RequestTimeout
	}
}

// Validate checks required fields and value ranges. Endpoint names are
// checked by the extractor, which owns the supported resource set.
func (c *Config) Validate() error {
	switch c.Action {
	case ActionRun, ActionTestConnection:
	default:
		return errors.NewConfigError("unsupported action %q", c.Action)
	}

	p := c.Parameters
	if strings.TrimSpace(p.Account.ServiceUserID) == "" {
		return errors.NewConfigError("parameters.account.service_user_id is required")
	}
	if strings.TrimSpace(p.Account.ServiceUserToken) == "" {
		return errors.NewConfigError("parameters.account.#service_user_token is required")
	}

	switch p.Destination.LoadType {
	case LoadTypeIncremental, LoadTypeFull:
	default:
		return errors.NewConfigError("unsupported load_type %q (use %s or %s)",
			p.Destination.LoadType, LoadTypeIncremental, LoadTypeFull)
	}

	if _, err := compression.ParseAlgorithm(p.Output.Compression); err != nil {
		return errors.NewConfigError("%v", err)
	}

	cc := p.Client
	if cc.MaxAttempts <= 0 {
		return errors.NewConfigError("client.max_attempts must be positive")
	}
	if cc.RateLimitCalls <= 0 {
		return errors.NewConfigError("client.rate_limit_calls must be positive")
	}
	if cc.RateLimitPeriod <= 0 {
		return errors.NewConfigError("client.rate_limit_period must be positive")
	}
	if cc.BackoffFactor < 0 || cc.MaxBackoff < 0 || cc.RequestTimeout < 0 {
		return errors.NewConfigError("client durations cannot be negative")
	}
	return nil
}

// Incremental reports whether tables are appended rather than replaced.
func (p *Parameters) Incremental() bool {
	return p.Destination.LoadType == LoadTypeIncremental
}

// Paths locates inputs and outputs inside a data folder.
type Paths struct {
	Config   string
	InState  string
	OutState string
	Tables   string
}

// DataDirPaths returns the standard layout rooted at dataDir.
func DataDirPaths(dataDir string) Paths {
	return Paths{
		Config:   filepath.Join(dataDir, "config.json"),
		InState:  filepath.Join(dataDir, "in", "state.json"),
		OutState: filepath.Join(dataDir, "out", "state.json"),
		Tables:   filepath.Join(dataDir, "out", "tables"),
	}
}
