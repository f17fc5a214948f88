// Package scheduler runs the pipeline stages on cron cadences.
package scheduler

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"skill-radar/config"
	"skill-radar/models"
	"skill-radar/scraper"
	"skill-radar/services"
	"skill-radar/utils"
)

// Stages is the part of services.Pipeline the scheduler drives.
type Stages interface {
	RunCollection(ctx context.Context, source models.Source, q scraper.Query) (*services.RunResult, error)
	RunNormalization(ctx context.Context, batchSize int) (*services.RunResult, error)
	RunAggregation(ctx context.Context) (*services.RunResult, error)
}

type Runner struct {
	cron    *cron.Cron
	stages  Stages
	logger  *utils.Logger
	baseCtx context.Context
}

// New builds a seconds-resolution cron whose jobs are skipped, not queued,
// while a previous run of the same job is still going.
func New(baseCtx context.Context, stages Stages, logger *utils.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cl := cronLogger{logger}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		stages:  stages,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Register adds the three stage jobs from cfg. An empty spec disables a stage.
func (r *Runner) Register(cfg *config.Config) error {
	if cfg.CronCollect != "" {
		queries := make([]collection, 0, len(cfg.Collections))
		for _, c := range cfg.Collections {
			src, err := models.ParseSource(c.Source)
			if err != nil {
				return err
			}
			queries = append(queries, collection{source: src, query: scraper.Query{Term: c.Term, Location: c.Location, MaxPages: c.MaxPages}})
		}
		if len(queries) == 0 {
			r.logger.Warn("[scheduler] %s is set but no collections are configured", "CRON_COLLECT")
		}
		if err := r.add(services.StageCollect, cfg.CronCollect, func(ctx context.Context) { r.collect(ctx, queries) }); err != nil {
			return err
		}
	}
	if cfg.CronNormalize != "" {
		batch := cfg.NormalizeBatchSize
		if err := r.add(services.StageNormalize, cfg.CronNormalize, func(ctx context.Context) {
			res, err := r.stages.RunNormalization(ctx, batch)
			r.report(services.StageNormalize, res, err)
		}); err != nil {
			return err
		}
	}
	if cfg.CronAggregate != "" {
		if err := r.add(services.StageAggregate, cfg.CronAggregate, func(ctx context.Context) {
			res, err := r.stages.RunAggregation(ctx)
			r.report(services.StageAggregate, res, err)
		}); err != nil {
			return err
		}
	}
	return nil
}

type collection struct {
	source models.Source
	query  scraper.Query
}

func (r *Runner) add(name, spec string, job func(context.Context)) error {
	if _, err := r.cron.AddFunc(spec, func() { job(r.baseCtx) }); err != nil {
		return errors.Wrapf(models.ErrConfiguration, "%s schedule %q: %v", name, spec, err)
	}
	r.logger.Info("[scheduler] %s scheduled at %q", name, spec)
	return nil
}

func (r *Runner) collect(ctx context.Context, queries []collection) {
	for _, c := range queries {
		if ctx.Err() != nil {
			return
		}
		res, err := r.stages.RunCollection(ctx, c.source, c.query)
		r.report(services.StageCollect+":"+string(c.source), res, err)
	}
}

func (r *Runner) report(stage string, res *services.RunResult, err error) {
	switch {
	case errors.Is(err, models.ErrStageBusy):
		r.logger.Info("[scheduler] %s skipped, previous run still active", stage)
	case err != nil:
		r.logger.Error("[scheduler] %s failed: %v", stage, err)
	case len(res.Errors) > 0:
		r.logger.Warn("[scheduler] %s finished with %d item errors", stage, len(res.Errors))
	}
}

// Len is the number of registered jobs.
func (r *Runner) Len() int { return len(r.cron.Entries()) }

func (r *Runner) Start() {
	r.logger.Info("[scheduler] cron started")
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("[scheduler] cron stopped")
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{ l *utils.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Zap().Debugw("[cron] "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Zap().Errorw("[cron] "+msg, append(kv, "error", err)...)
}
