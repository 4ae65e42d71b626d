// Command scryflow drives the Django admin staff workflow in a real browser
// and reports a PASS/FAIL verdict.
//
//	scryflow run       run the scenario once and exit non-zero on FAIL
//	scryflow serve     expose runs over HTTP
//	scryflow verify    check that Chrome can be driven at all
package main

import (
	"fmt"
	"os"

	"github.com/copyleftdev/scryflow/internal/config"
	"github.com/copyleftdev/scryflow/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"

	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:           "scryflow",
	Short:         "Browser-driven end-to-end check of the Django admin staff workflow",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml, $HOME/.scryflow, /etc/scryflow)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	runCmd.Flags().StringVar(&runID, "run-id", "", "run id used for logs and artifacts")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override server.port")
	verifyCmd.Flags().StringVar(&verifyURL, "url", "", "page to load (default target.baseURL)")

	rootCmd.AddCommand(runCmd, serveCmd, verifyCmd)
}

// setup loads the config and builds the logger every command starts from.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// failedError marks a scenario that ran to a FAIL verdict, as opposed to one
// that could not run.
type failedError struct{ step string }

func (e *failedError) Error() string { return fmt.Sprintf("scenario failed at %s", e.step) }

func exitCode(err error) int {
	if _, ok := err.(*failedError); ok {
		fmt.Fprintln(os.Stderr, "FAIL:", err)
		return 1
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 2
}
