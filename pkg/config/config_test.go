package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileJSONWithDefaults(t *testing.T) {
	path := writeFile(t, `{
  "parameters": {
    "account": {"service_user_id": "svc", "#service_user_token": "secret"},
    "endpoints": ["employment_history", "employee_lifecycle"],
    "human_readable": true,
    "client": {"max_attempts": 4, "backoff_factor": "1s"}
  }
}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ActionRun, cfg.Action)
	assert.Equal(t, "svc", cfg.Parameters.Account.ServiceUserID)
	assert.Equal(t, "secret", cfg.Parameters.Account.ServiceUserToken)
	assert.Equal(t, []string{"employment_history", "employee_lifecycle"}, cfg.Parameters.Endpoints)
	assert.True(t, cfg.Parameters.HumanReadable)
	assert.True(t, cfg.Parameters.Incremental())

	cc := cfg.Parameters.Client
	assert.Equal(t, 4, cc.MaxAttempts)
	assert.Equal(t, time.Second, cc.BackoffFactor)
	assert.Equal(t, 2*time.Minute, cc.MaxBackoff)
	assert.Equal(t, 100, cc.RateLimitCalls)
	assert.Equal(t, time.Minute, cc.RateLimitPeriod)
	assert.Equal(t, DefaultBaseURL, cc.BaseURL)
	assert.True(t, cc.EnableHTTP2)
}

func TestLoadFileKeepsExplicitFalse(t *testing.T) {
	path := writeFile(t, `{"parameters": {"client": {"enable_http2": false}}}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Parameters.Client.EnableHTTP2)
	assert.Equal(t, 10, cfg.Parameters.Client.MaxAttempts)
}

func TestLoadFileSubstitutesEnv(t *testing.T) {
	t.Setenv("HIBOB_TEST_TOKEN", "from-env")
	path := writeFile(t, `
action: testConnection
parameters:
  account:
    service_user_id: svc
    "#service_user_token": "${HIBOB_TEST_TOKEN}"
  destination:
    load_type: full_load
  output:
    compression: zstd
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ActionTestConnection, cfg.Action)
	assert.Equal(t, "from-env", cfg.Parameters.Account.ServiceUserToken)
	assert.False(t, cfg.Parameters.Incremental())
	assert.Equal(t, "zstd", cfg.Parameters.Output.Compression)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = LoadFile(writeFile(t, `{"parameters": [`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig()
		cfg.Parameters.Account = AccountConfig{ServiceUserID: "svc", ServiceUserToken: "tok"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing id", mutate: func(c *Config) { c.Parameters.Account.ServiceUserID = " " }, errMsg: "service_user_id"},
		{name: "missing token", mutate: func(c *Config) { c.Parameters.Account.ServiceUserToken = "" }, errMsg: "#service_user_token"},
		{name: "action", mutate: func(c *Config) { c.Action = "sync" }, errMsg: "unsupported action"},
		{name: "load type", mutate: func(c *Config) { c.Parameters.Destination.LoadType = "append" }, errMsg: "load_type"},
		{name: "compression", mutate: func(c *Config) { c.Parameters.Output.Compression = "brotli" }, errMsg: "brotli"},
		{name: "attempts", mutate: func(c *Config) { c.Parameters.Client.MaxAttempts = 0 }, errMsg: "max_attempts"},
		{name: "rate calls", mutate: func(c *Config) { c.Parameters.Client.RateLimitCalls = -1 }, errMsg: "rate_limit_calls"},
		{name: "rate period", mutate: func(c *Config) { c.Parameters.Client.RateLimitPeriod = 0 }, errMsg: "rate_limit_period"},
		{name: "negative backoff", mutate: func(c *Config) { c.Parameters.Client.MaxBackoff = -time.Second }, errMsg: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestDataDirPaths(t *testing.T) {
	p := DataDirPaths("/data")
	assert.Equal(t, filepath.Join("/data", "config.json"), p.Config)
	assert.Equal(t, filepath.Join("/data", "in", "state.json"), p.InState)
	assert.Equal(t, filepath.Join("/data", "out", "state.json"), p.OutState)
	assert.Equal(t, filepath.Join("/data", "out", "tables"), p.Tables)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Parameters.Account = AccountConfig{ServiceUserID: "svc", ServiceUserToken: "tok"}
	cfg.Parameters.Endpoints = []string{"employee_work_history"}
	cfg.Parameters.Fields = []string{"root.id"}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, cfg))

	back, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
