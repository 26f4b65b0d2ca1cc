package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/config"
	"github.com/Noxie-dev/workwise-sa/internal/session"
)

var (
	runSpiders    []string
	runMaxItems   int
	runConcurrent int
	runTimeout    time.Duration
	runDryRun     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion session and exit",
	Long: "Runs the enabled tasks once, writes the session report and exits 0 when " +
		"everything succeeded, 1 when a task or batch failed and 2 when interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		logger.Info("starting session", zap.Any("config", cfg.Redacted()))

		rep, err := session.New(cfg, logger).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "session")
		}
		if code := rep.ExitCode(); code != 0 {
			return exitCodeError{code: code}
		}
		return nil
	},
}

// applyRunFlags overlays explicitly set flags on the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("spider") {
		c.Tasks.Enabled = runSpiders
	}
	if flags.Changed("max-items") {
		c.Tasks.MaxItems = runMaxItems
	}
	if flags.Changed("concurrent") {
		c.Tasks.MaxConcurrent = runConcurrent
	}
	if flags.Changed("timeout") {
		c.Tasks.Timeout = runTimeout
	}
	if flags.Changed("dry-run") {
		c.DryRun = runDryRun
	}
	return c.Validate()
}

func init() {
	runCmd.Flags().StringSliceVar(&runSpiders, "spider", nil, "tasks to run (default from config)")
	runCmd.Flags().IntVar(&runMaxItems, "max-items", 0, "per-task record cap, 0 for none")
	runCmd.Flags().IntVar(&runConcurrent, "concurrent", 0, "maximum tasks running at once")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-task timeout")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "use an in-memory store and skip remote ingestion")
	rootCmd.AddCommand(runCmd)
}
