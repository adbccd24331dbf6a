// Command hibob-extractor extracts employees and their history from the
// HiBob API into CSV tables inside a Keboola-style data folder.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
)

var version = "0.1.0"

// Viper keys.
const (
	keyConfig      = "config"
	keyDataDir     = "data-dir"
	keyLogLevel    = "log-level"
	keyMetricsFile = "metrics-file"
	keyTraceFile   = "trace-file"
	keyCPUProfile  = "cpu-profile"
	keyUserID      = "service-user-id"
	keyUserToken   = "service-user-token"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "hibob-extractor",
		Short: "Extract HiBob employees and their history into CSV tables",
		Long: `hibob-extractor reads <data-dir>/config.json, lists all employees through the
HiBob API, fetches the configured per-employee histories and writes one CSV
table per resource to <data-dir>/out/tables. Column lists are remembered in
<data-dir>/out/state.json so table headers never shrink between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String(keyConfig, "", "Path to the configuration file (default <data-dir>/config.json)")
	flags.String(keyDataDir, "data", "Data folder holding config.json, in/ and out/")
	flags.String(keyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.String(keyMetricsFile, "", "Write Prometheus metrics in text format to this file after the run")
	flags.String(keyTraceFile, "", "Write OpenTelemetry spans to this file")
	_ = v.BindPFlags(flags)

	v.SetEnvPrefix("HIBOB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(keyDataDir, "HIBOB_DATA_DIR", "KBC_DATADIR")
	_ = v.BindEnv(keyUserID, "HIBOB_SERVICE_USER_ID")
	_ = v.BindEnv(keyUserToken, "HIBOB_SERVICE_USER_TOKEN")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the action named in the configuration (extraction by default)",
		Example: `  hibob-extractor run --data-dir ./data
  KBC_DATADIR=/data hibob-extractor run --metrics-file /tmp/hibob.prom`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), v, cmd.OutOrStdout(), "")
		},
	}
	runCmd.Flags().String(keyCPUProfile, "", "Write a CPU profile of the run to this file")
	_ = v.BindPFlag(keyCPUProfile, runCmd.Flags().Lookup(keyCPUProfile))
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "test-connection",
		Short: "Check that the configured service user can reach the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), v, cmd.OutOrStdout(), actionTestConnection)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hibob-extractor v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	return root
}
