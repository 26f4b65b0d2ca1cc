// workwise-ingest collects job postings from the configured sources, runs
// them through the validation and dedup pipeline, stores them and forwards
// them to the WorkWise ingestion endpoint.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/config"
)

const serviceName = "workwise-ingest"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Job posting ingestion for WorkWise SA",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		l, err := config.InitLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l.With(zap.String("service", serviceName), zap.String("version", version))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// exitCodeError carries a session's exit status out of a command.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, version)
		},
	}
	// version must work without a valid config.
	versionCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error { return nil }
	rootCmd.AddCommand(versionCmd)
}

func main() {
	os.Exit(execute())
}

func execute() int {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	var exit exitCodeError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		return 1
	}
}
