package cli

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"skill-radar/models"
	"skill-radar/scraper"
	"skill-radar/services"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch postings from a source into the raw document store",
	Long: `Runs one collection query, or every configured collection when no
--term is given.`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Turn pending raw documents into jobs",
	Args:  cobra.NoArgs,
	RunE:  runNormalize,
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute demand and the demand/supply index for every window",
	Args:  cobra.NoArgs,
	RunE:  runAggregate,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect every configured query, drain normalization, then aggregate",
	Args:  cobra.NoArgs,
	RunE:  runAll,
}

var (
	collectSource   string
	collectTerm     string
	collectLocation string
	collectPages    int
	normalizeBatch  int
	normalizeAll    bool
)

func init() {
	collectCmd.Flags().StringVarP(&collectSource, "source", "s", "indeed", "Source to collect from (indeed, adzuna)")
	collectCmd.Flags().StringVarP(&collectTerm, "term", "t", "", "Search term")
	collectCmd.Flags().StringVarP(&collectLocation, "location", "l", "", "Search location")
	collectCmd.Flags().IntVarP(&collectPages, "pages", "p", 0, "Result pages to walk (default MAX_PAGES)")
	normalizeCmd.Flags().IntVarP(&normalizeBatch, "batch", "b", 0, "Documents per batch (default NORMALIZE_BATCH_SIZE)")
	normalizeCmd.Flags().BoolVar(&normalizeAll, "all", false, "Repeat batches until nothing is pending")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(runCmd)
}

// queries returns the collections to run: the flag query when a term is
// given, otherwise the configured list.
func queries() ([]collection, error) {
	if collectTerm != "" {
		src, err := models.ParseSource(collectSource)
		if err != nil {
			return nil, err
		}
		return []collection{{src, scraper.Query{Term: collectTerm, Location: collectLocation, MaxPages: collectPages}}}, nil
	}
	out := make([]collection, 0, len(cfg.Collections))
	for _, c := range cfg.Collections {
		src, err := models.ParseSource(c.Source)
		if err != nil {
			return nil, err
		}
		out = append(out, collection{src, scraper.Query{Term: c.Term, Location: c.Location, MaxPages: c.MaxPages}})
	}
	if len(out) == 0 {
		return nil, errors.Wrap(models.ErrConfiguration, "no --term given and no collections configured")
	}
	return out, nil
}

type collection struct {
	source models.Source
	query  scraper.Query
}

func runCollect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	qs, err := queries()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := collectAll(ctx, a.pipeline, qs)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), results)
}

func collectAll(ctx context.Context, p *services.Pipeline, qs []collection) ([]*services.RunResult, error) {
	var results []*services.RunResult
	for _, c := range qs {
		res, err := p.RunCollection(ctx, c.source, c.query)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func runNormalize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	batch := normalizeBatch
	if batch == 0 {
		batch = cfg.NormalizeBatchSize
	}
	results, err := drain(ctx, a.pipeline, batch, normalizeAll)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), results)
}

// drain runs normalization batches. With all set it keeps going while
// batches are full and at least one document was parsed or skipped. A batch
// of errors only may leave its documents pending, so it ends the loop.
func drain(ctx context.Context, p *services.Pipeline, batch int, all bool) ([]*services.RunResult, error) {
	var results []*services.RunResult
	for {
		res, err := p.RunNormalization(ctx, batch)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
		if !all || res.Affected+res.Skipped+len(res.Errors) < batch {
			return results, nil
		}
		if res.Affected == 0 && res.Skipped == 0 {
			return results, nil
		}
	}
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.RunAggregation(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runAll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	qs, err := queries()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := collectAll(ctx, a.pipeline, qs)
	if err != nil {
		return err
	}
	normalized, err := drain(ctx, a.pipeline, cfg.NormalizeBatchSize, true)
	results = append(results, normalized...)
	if err != nil {
		return err
	}
	agg, err := a.pipeline.RunAggregation(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), append(results, agg))
}
