package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"skill-radar/config"
	"skill-radar/models"
	"skill-radar/reference"
	"skill-radar/scraper/adzuna"
	"skill-radar/scraper/indeed"
	"skill-radar/services"
	"skill-radar/storage"
	"skill-radar/utils"
)

// lockTTL bounds how long a crashed process can hold a stage lock.
const lockTTL = 30 * time.Minute

// openStore is replaced in tests.
var openStore = func(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("[app] Using the in-memory store; nothing survives this process")
		store := storage.NewMemoryStore()
		if err := seedReference(ctx, store, reference.DefaultLoader()); err != nil {
			return nil, err
		}
		return store, nil
	default:
		retry := &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: time.Second, Logger: logger}
		return storage.NewPostgresStore(ctx, cfg.DSN(), retry)
	}
}

// app is the wired object graph for one command invocation.
type app struct {
	store    storage.Store
	locker   utils.Locker
	registry *reference.Registry
	pipeline *services.Pipeline
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*app, error) {
	windows, err := cfg.ParsedWindows()
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	a := &app{store: store}
	a.closers = append(a.closers, func() { _ = store.Close() })

	registry, err := reference.NewRegistry(ctx, store)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "load reference data")
	}
	if skills, districts := registry.Current().Size(); skills == 0 || districts == 0 {
		a.Close()
		return nil, errors.Wrap(models.ErrConfiguration, "reference data is empty, run `skill-radar seed` first")
	}
	a.registry = registry

	switch cfg.LockBackend {
	case "redis":
		rl := utils.NewRedisLocker(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, lockTTL)
		a.locker = rl
		a.closers = append(a.closers, func() { _ = rl.Close() })
	default:
		a.locker = utils.NewLocalLocker()
	}

	normalizer := services.NewNormalizer(registry, services.DefaultExtractors(), store, store, logger)
	aggregator := services.NewAggregator(store, store, cfg.DecayTauDays, cfg.PruneStale, logger)
	dsi := services.NewDSICalculator(store, store, store, cfg.DSI, cfg.PruneStale, logger)
	a.pipeline = services.NewPipeline(store, normalizer, aggregator, dsi, a.locker, windows, logger)

	browser := indeed.NewChromeBrowser(cfg.ChromeBin)
	a.closers = append(a.closers, browser.Close)
	a.pipeline.RegisterCollector(indeed.New(browser, indeed.Options{
		BaseURL:      cfg.IndeedBaseURL,
		FetchTimeout: cfg.FetchTimeout,
		MinInterval:  time.Duration(cfg.RateLimitMs) * time.Millisecond,
		MaxPages:     cfg.MaxPages,
	}, logger))
	a.pipeline.RegisterCollector(adzuna.New(adzuna.Options{
		BaseURL:      cfg.AdzunaBaseURL,
		Country:      cfg.AdzunaCountry,
		AppID:        cfg.AdzunaAppID,
		AppKey:       cfg.AdzunaAppKey,
		MaxPages:     cfg.MaxPages,
		FetchTimeout: cfg.FetchTimeout,
		MinInterval:  time.Duration(cfg.AdzunaRateLimitMs) * time.Millisecond,
	}, http.DefaultClient, logger))

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func seedReference(ctx context.Context, store storage.ReferenceStore, loader reference.Loader) error {
	skills, err := loader.LoadSkills(ctx)
	if err != nil {
		return err
	}
	districts, err := loader.LoadDistricts(ctx)
	if err != nil {
		return err
	}
	// validate before writing anything
	if _, err := reference.NewCatalog(skills, districts); err != nil {
		return err
	}
	if err := store.UpsertSkills(ctx, skills); err != nil {
		return errors.Wrap(err, "upsert skills")
	}
	return errors.Wrap(store.UpsertDistricts(ctx, districts), "upsert districts")
}
