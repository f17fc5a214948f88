package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"skill-radar/models"
	"skill-radar/scraper"
	"skill-radar/storage"
	"skill-radar/utils"
)

// Stage names, also used as lock names.
const (
	StageCollect   = "collect"
	StageNormalize = "normalize"
	StageAggregate = "aggregate"
)

// RunResult reports one stage invocation. Per-item failures never abort the
// run; they are listed in Errors.
type RunResult struct {
	Stage      string             `json:"stage"`
	RunID      string             `json:"runId"`
	Affected   int                `json:"affected"`
	Skipped    int                `json:"skipped"`
	Errors     []models.ItemError `json:"errors,omitempty"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
}

func (r *RunResult) addError(item string, err error) {
	r.Errors = append(r.Errors, models.NewItemError(item, err))
}

// Pipeline coordinates the collection, normalization and aggregation stages.
type Pipeline struct {
	raw        storage.RawDocumentStore
	normalizer *Normalizer
	aggregator *Aggregator
	dsi        *DSICalculator
	locker     utils.Locker
	windows    []models.Window
	collectors map[models.Source]scraper.Collector
	now        func() time.Time
	logger     *utils.Logger
}

func NewPipeline(raw storage.RawDocumentStore, normalizer *Normalizer, aggregator *Aggregator, dsi *DSICalculator,
	locker utils.Locker, windows []models.Window, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		raw:        raw,
		normalizer: normalizer,
		aggregator: aggregator,
		dsi:        dsi,
		locker:     locker,
		windows:    windows,
		collectors: make(map[models.Source]scraper.Collector),
		now:        time.Now,
		logger:     logger,
	}
}

// RegisterCollector makes a source available to RunCollection.
func (p *Pipeline) RegisterCollector(c scraper.Collector) {
	p.collectors[c.Source()] = c
}

// SetClock overrides the aggregation clock, for tests.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

func (p *Pipeline) start(stage string) (*RunResult, *utils.Logger) {
	res := &RunResult{Stage: stage, RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	return res, p.logger.With("stage", stage, "run_id", res.RunID)
}

func (p *Pipeline) finish(res *RunResult, log *utils.Logger) *RunResult {
	res.FinishedAt = time.Now().UTC()
	log.Info("[pipeline] %s done: affected=%d skipped=%d errors=%d in %v",
		res.Stage, res.Affected, res.Skipped, len(res.Errors), res.FinishedAt.Sub(res.StartedAt))
	return res
}

func (p *Pipeline) lock(ctx context.Context, name string) (func(), error) {
	release, ok, err := p.locker.TryLock(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "acquire %s lock", name)
	}
	if !ok {
		return nil, errors.Wrapf(models.ErrStageBusy, "%s", name)
	}
	return release, nil
}

// RunCollection fetches one query from a source and records every new
// document. Already captured URLs are skipped, never reported as errors.
func (p *Pipeline) RunCollection(ctx context.Context, source models.Source, q scraper.Query) (*RunResult, error) {
	collector, ok := p.collectors[source]
	if !ok {
		return nil, errors.Wrapf(models.ErrConfiguration, "no collector registered for source %q", source)
	}
	release, err := p.lock(ctx, StageCollect+":"+string(source))
	if err != nil {
		return nil, err
	}
	defer release()

	res, log := p.start(StageCollect)
	log = log.With("source", source)

	q.Skip = func(url string) bool {
		seen, err := p.raw.HasFetched(ctx, source, url)
		return err == nil && seen
	}

	fetched, err := collector.Fetch(ctx, q)
	if err != nil {
		if errors.Is(err, models.ErrConfiguration) {
			return nil, err
		}
		log.Error("[pipeline] %s query %q/%q failed: %v", source, q.Term, q.Location, err)
		res.addError(string(source)+":"+q.Term+"@"+q.Location, err)
		return p.finish(res, log), nil
	}
	res.Errors = append(res.Errors, fetched.Failures...)

	for _, item := range fetched.Items {
		_, err := p.raw.Record(ctx, source, item.SourceURL, item.ContentType, item.Content)
		switch {
		case err == nil:
			res.Affected++
		case errors.Is(err, models.ErrDuplicateFetch):
			res.Skipped++
		default:
			res.addError(item.SourceURL, err)
		}
	}
	return p.finish(res, log), ctx.Err()
}

// RunNormalization normalizes up to batchSize pending documents. Each
// document's outcome is independent. Cancellation stops the batch but keeps
// every transition already committed.
func (p *Pipeline) RunNormalization(ctx context.Context, batchSize int) (*RunResult, error) {
	if batchSize <= 0 {
		return nil, errors.Wrapf(models.ErrConfiguration, "batch size must be positive, got %d", batchSize)
	}
	res, log := p.start(StageNormalize)

	docs, err := p.raw.ListPending(ctx, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "list pending documents")
	}

	for _, doc := range docs {
		if ctx.Err() != nil {
			return p.finish(res, log), ctx.Err()
		}
		_, err := p.normalizer.Process(ctx, doc)
		switch {
		case err == nil:
			res.Affected++
		case errors.Is(err, models.ErrNotPending):
			res.Skipped++
		case errors.Is(err, models.ErrConfiguration):
			return p.finish(res, log), err
		default:
			res.addError(doc.ID, err)
		}
	}
	return p.finish(res, log), nil
}

// RunAggregation recomputes demand and then the index for every configured
// window, all stamped with a single now. Only one aggregation runs at a time.
func (p *Pipeline) RunAggregation(ctx context.Context) (*RunResult, error) {
	release, err := p.lock(ctx, StageAggregate)
	if err != nil {
		return nil, err
	}
	defer release()

	res, log := p.start(StageAggregate)
	now := p.now().UTC()

	for _, w := range p.windows {
		if ctx.Err() != nil {
			return p.finish(res, log), ctx.Err()
		}
		demand, err := p.aggregator.Recompute(ctx, w, now)
		if err != nil {
			if errors.Is(err, models.ErrConfiguration) {
				return p.finish(res, log), err
			}
			res.addError(string(w), err)
			continue
		}
		index, err := p.dsi.Recompute(ctx, w, now)
		if err != nil {
			res.addError(string(w), err)
			continue
		}
		res.Affected += len(demand.Rows) + len(index)
	}
	return p.finish(res, log), nil
}
