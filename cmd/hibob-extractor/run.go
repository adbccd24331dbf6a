package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hibob-extractor/internal/extractor"
	"github.com/ajitpratap0/hibob-extractor/pkg/clients"
	"github.com/ajitpratap0/hibob-extractor/pkg/compression"
	"github.com/ajitpratap0/hibob-extractor/pkg/config"
	"github.com/ajitpratap0/hibob-extractor/pkg/connector/destinations/csv"
	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	"github.com/ajitpratap0/hibob-extractor/pkg/hibob"
	jsonpool "github.com/ajitpratap0/hibob-extractor/pkg/json"
	"github.com/ajitpratap0/hibob-extractor/pkg/logger"
	"github.com/ajitpratap0/hibob-extractor/pkg/metrics"
	"github.com/ajitpratap0/hibob-extractor/pkg/observability"
	"github.com/ajitpratap0/hibob-extractor/pkg/schema"
)

const actionTestConnection = config.ActionTestConnection

// execute loads the configuration and runs its action, or force when set.
func execute(ctx context.Context, v *viper.Viper, out io.Writer, force string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(logger.Config{Level: v.GetString(keyLogLevel), OutputPaths: []string{"stderr"}}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid log level")
	}
	defer func() { _ = logger.Sync() }()

	paths := config.DataDirPaths(v.GetString(keyDataDir))
	if p := v.GetString(keyConfig); p != "" {
		paths.Config = p
	}

	cfg, err := loadConfig(v, paths.Config)
	if err != nil {
		return err
	}
	if cfg.Parameters.Debug {
		if err := logger.Init(logger.Config{Level: "debug", OutputPaths: []string{"stderr"}}); err != nil {
			return err
		}
	}
	log := logger.With(zap.String("component", "cli"), zap.String("version", version))

	shutdown, err := observability.Init(observability.TracingConfig{
		Enabled:        v.GetString(keyTraceFile) != "",
		ServiceName:    "hibob-extractor",
		ServiceVersion: version,
		OutputPath:     v.GetString(keyTraceFile),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to initialize tracing")
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			log.Warn("failed to flush traces", zap.Error(serr))
		}
	}()

	if path := v.GetString(keyMetricsFile); path != "" {
		defer func() {
			if merr := metrics.WriteTextfile(path); merr != nil {
				log.Warn("failed to write metrics file", zap.String("path", path), zap.Error(merr))
			}
		}()
	}

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	action := cfg.Action
	if force != "" {
		action = force
	}

	switch action {
	case config.ActionTestConnection:
		return testConnection(ctx, client, out, log)
	default:
		stopProfile, err := startCPUProfile(v.GetString(keyCPUProfile))
		if err != nil {
			return err
		}
		defer stopProfile()
		return runExtraction(ctx, cfg, paths, client, out, log)
	}
}

// loadConfig reads the file and applies environment overrides for the
// credentials before validating.
func loadConfig(v *viper.Viper, path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if id := v.GetString(keyUserID); id != "" {
		cfg.Parameters.Account.ServiceUserID = id
	}
	if token := v.GetString(keyUserToken); token != "" {
		cfg.Parameters.Account.ServiceUserToken = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config, log *zap.Logger) (*hibob.Client, error) {
	cc := cfg.Parameters.Client

	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.BaseURL = cc.BaseURL
	httpCfg.RequestTimeout = cc.RequestTimeout
	httpCfg.EnableHTTP2 = cc.EnableHTTP2
	httpCfg.UserAgent = "hibob-extractor/" + version
	httpCfg.Retry = clients.NewRetryPolicy(cc.MaxAttempts, cc.BackoffFactor, cc.MaxBackoff)

	return hibob.NewClient(hibob.Config{
		Credentials: hibob.Credentials{
			ServiceUserID:    cfg.Parameters.Account.ServiceUserID,
			ServiceUserToken: cfg.Parameters.Account.ServiceUserToken,
		},
		HTTP:       httpCfg,
		RateLimit:  cc.RateLimitCalls,
		RateWindow: cc.RateLimitPeriod,
	}, log)
}

func testConnection(ctx context.Context, client *hibob.Client, out io.Writer, log *zap.Logger) error {
	if !client.TestConnection(ctx) {
		return errors.New(errors.ErrorTypeAuthentication,
			"connection test failed, check the service user id and token and the user's API permissions")
	}
	log.Info("connection test succeeded")
	fmt.Fprintln(out, "connection OK")
	return nil
}

func runExtraction(ctx context.Context, cfg *config.Config, paths config.Paths, client *hibob.Client,
	out io.Writer, log *zap.Logger) error {
	algo, err := compression.ParseAlgorithm(cfg.Parameters.Output.Compression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}
	dest, err := csv.NewDestination(paths.Tables, &compression.Config{Algorithm: algo, Level: compression.Default}, log)
	if err != nil {
		return err
	}

	ex, err := extractor.New(client, extractor.CSVSinks(dest), schema.NewFileStore(paths.InState, paths.OutState),
		extractor.Options{
			Resources:     cfg.Parameters.Endpoints,
			HumanReadable: cfg.Parameters.HumanReadable,
			Fields:        cfg.Parameters.Fields,
			Incremental:   cfg.Parameters.Incremental(),
		}, log)
	if err != nil {
		return err
	}

	summary, runErr := ex.Run(ctx)

	stats := client.Stats()
	log.Info("api usage",
		zap.Int64("calls", stats.TotalCalls),
		zap.Int64("failed_calls", stats.FailedCalls),
		zap.Int64("retries", stats.Retries),
		zap.Int64("throttled_calls", stats.ThrottledCalls),
		zap.Duration("throttle_wait", stats.ThrottleWait),
		zap.Duration("p95_latency", stats.P95Latency),
		zap.Any("errors_by_status", stats.ErrorsByStatus))

	if summary != nil {
		data, err := jsonpool.MarshalIndent(summary, "", "  ")
		if err == nil {
			fmt.Fprintln(out, string(data))
		}
	}
	return runErr
}

// startCPUProfile starts pprof CPU profiling when path is set.
func startCPUProfile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create CPU profile").WithDetail("path", path)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to start CPU profile")
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}
