package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"skill-radar/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run every stage on its cron cadence until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		runner := scheduler.New(ctx, a.pipeline, logger)
		if err := runner.Register(cfg); err != nil {
			return err
		}
		runner.Start()
		logger.Info("[scheduler] %d jobs registered, waiting for signal", runner.Len())

		<-ctx.Done()
		logger.Info("[scheduler] Shutting down")
		runner.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
