package cli

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"skill-radar/models"
	"skill-radar/reference"
	"skill-radar/services"
	"skill-radar/storage"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the skill taxonomy and geo mapping into the store",
	Long: `Loads skills.yaml and districts.yaml from --dir, or the files bundled
with the binary, and upserts them. Existing entries are updated in place.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

var supplyCmd = &cobra.Command{
	Use:   "supply",
	Short: "Manage talent supply figures",
}

var supplyImportCmd = &cobra.Command{
	Use:   "import [file.csv]",
	Short: "Upsert talent supply rows from a CSV file",
	Long:  `Columns: district_code, skill_id, candidates_total, candidates_above_threshold.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSupplyImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the demand/supply index of a window to CSV",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the radar summary for a window",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var (
	seedDir      string
	exportWindow string
	exportOut    string
	reportWindow string
	reportLimit  int
)

func init() {
	seedCmd.Flags().StringVar(&seedDir, "dir", "", "Directory holding skills.yaml and districts.yaml")
	exportCmd.Flags().StringVarP(&exportWindow, "window", "w", "30d", "Window to export (7d, 30d, 90d)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output path (default CSV_OUTPUT_PATH)")
	reportCmd.Flags().StringVarP(&reportWindow, "window", "w", "30d", "Window to report on (7d, 30d, 90d)")
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 0, "Only consider the top N rows by DSI")

	supplyCmd.AddCommand(supplyImportCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(supplyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var loader reference.Loader = reference.DefaultLoader()
	if seedDir != "" {
		loader = reference.DirLoader(seedDir)
	}
	if err := seedReference(ctx, store, loader); err != nil {
		return err
	}

	registry, err := reference.NewRegistry(ctx, store)
	if err != nil {
		return err
	}
	skills, districts := registry.Current().Size()
	logger.Info("[seed] Reference data loaded: %d skills, %d districts", skills, districts)
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d skills and %d districts\n", skills, districts)
	return nil
}

func runSupplyImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrapf(models.ErrConfiguration, "open supply file: %v", err)
	}
	defer f.Close()

	rows, err := storage.ReadSupplyCSV(f)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UpsertSupply(ctx, rows); err != nil {
		return errors.Wrap(err, "upsert supply")
	}
	logger.Info("[supply] Imported %d rows from %s", len(rows), args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d supply rows\n", len(rows))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	window, err := models.ParseWindow(exportWindow)
	if err != nil {
		return err
	}
	out := exportOut
	if out == "" {
		out = cfg.CSVOutputPath
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.ListIndex(ctx, models.IndexQuery{Window: window})
	if err != nil {
		return errors.Wrap(err, "list index")
	}

	var w storage.IndexWriter
	w, err = storage.NewCSVWriter(out)
	if err != nil {
		return err
	}
	if err := w.WriteIndex(rows); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	logger.Info("[export] %d %s rows written to %s", len(rows), window, out)
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", len(rows), out)
	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	window, err := models.ParseWindow(reportWindow)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.ListIndex(ctx, models.IndexQuery{Window: window, Limit: reportLimit})
	if err != nil {
		return errors.Wrap(err, "list index")
	}
	svc := services.NewReportService(logger)
	svc.Print(cmd.OutOrStdout(), svc.Generate(window, rows))
	return nil
}
