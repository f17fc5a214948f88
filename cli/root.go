// Package cli exposes the pipeline stages, the scheduler and the reference
// data tools as cobra commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"skill-radar/config"
	"skill-radar/utils"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skill-radar",
	Short: "Labour-market skill radar",
	Long: `skill-radar collects job postings, normalizes and deduplicates them,
aggregates decayed skill demand per district and derives a demand/supply index.

Examples:
  skill-radar seed                          # load the bundled taxonomy and geo mapping
  skill-radar collect -s indeed -t golang   # capture one query
  skill-radar normalize --all               # drain the pending queue
  skill-radar aggregate                     # recompute every window
  skill-radar report -w 30d                 # print the radar summary
  skill-radar schedule                      # run every stage on its cron cadence`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = utils.NewLoggerWith(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default $RADAR_CONFIG)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
