package config

import (
	"log"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"skill-radar/models"
)

// Config holds all application configuration loaded from .env, the process
// environment and an optional YAML file.
type Config struct {
	StoreDriver string `mapstructure:"store_driver"`

	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     string `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`
	MaxRetries       int    `mapstructure:"max_retries"`

	LockBackend   string `mapstructure:"lock_backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Windows            []string `mapstructure:"windows"`
	DecayTauDays       float64  `mapstructure:"decay_tau_days"`
	NormalizeBatchSize int      `mapstructure:"normalize_batch_size"`
	PruneStale         bool     `mapstructure:"prune_stale"`

	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	RateLimitMs       int           `mapstructure:"rate_limit_ms"`
	AdzunaRateLimitMs int           `mapstructure:"adzuna_rate_limit_ms"`
	MaxPages          int           `mapstructure:"max_pages"`
	ChromeBin         string        `mapstructure:"chrome_bin"`
	AdzunaAppID       string        `mapstructure:"adzuna_app_id"`
	AdzunaAppKey      string        `mapstructure:"adzuna_app_key"`
	AdzunaCountry     string        `mapstructure:"adzuna_country"`
	AdzunaBaseURL     string        `mapstructure:"adzuna_base_url"`
	IndeedBaseURL     string        `mapstructure:"indeed_base_url"`

	DSI DSIConfig `mapstructure:",squash"`

	CSVOutputPath string `mapstructure:"csv_output_path"`

	CronCollect   string             `mapstructure:"cron_collect"`
	CronNormalize string             `mapstructure:"cron_normalize"`
	CronAggregate string             `mapstructure:"cron_aggregate"`
	Collections   []CollectionConfig `mapstructure:"collections"`
}

// DSIConfig holds the classification thresholds. They are configuration, not derived.
type DSIConfig struct {
	OversuppliedBelow  float64 `mapstructure:"dsi_oversupplied_below"`
	UndersuppliedAt    float64 `mapstructure:"dsi_undersupplied_at"`
	VeryTightAbove     float64 `mapstructure:"tightness_very_tight"`
	TightAbove         float64 `mapstructure:"tightness_tight"`
	LooseBelow         float64 `mapstructure:"tightness_loose"`
	VeryLooseBelow     float64 `mapstructure:"tightness_very_loose"`
	TrendStablePct     float64 `mapstructure:"trend_stable_pct"`
	TimeToFillBaseDays float64 `mapstructure:"time_to_fill_base_days"`
}

// CollectionConfig is one scheduled collector query.
type CollectionConfig struct {
	Source   string `mapstructure:"source"`
	Term     string `mapstructure:"term"`
	Location string `mapstructure:"location"`
	MaxPages int    `mapstructure:"max_pages"`
}

// DefaultDSIConfig returns the DSI thresholds used when nothing is configured.
func DefaultDSIConfig() DSIConfig {
	return DSIConfig{
		OversuppliedBelow:  0.5,
		UndersuppliedAt:    1.5,
		VeryTightAbove:     1.8,
		TightAbove:         1.2,
		LooseBelow:         0.8,
		VeryLooseBelow:     0.4,
		TrendStablePct:     5,
		TimeToFillBaseDays: 21,
	}
}

// Load reads the .env file and returns a populated, validated Config.
// configFile may be empty; RADAR_CONFIG is consulted in that case.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile == "" {
		configFile = v.GetString("radar_config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(models.ErrConfiguration, "read config %s: %v", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(models.ErrConfiguration, "decode config: %v", err)
	}
	// WINDOWS=7d,30d arrives as a single string from the environment.
	if len(cfg.Windows) == 1 && strings.Contains(cfg.Windows[0], ",") {
		cfg.Windows = strings.Split(cfg.Windows[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultDSIConfig()
	defaults := map[string]any{
		"store_driver":      "postgres",
		"postgres_host":     "localhost",
		"postgres_port":     "5432",
		"postgres_user":     "radar",
		"postgres_password": "radar123",
		"postgres_db":       "skill_radar",
		"postgres_sslmode":  "disable",
		"max_retries":       10,

		"lock_backend":   "memory",
		"redis_addr":     "",
		"redis_password": "",
		"redis_db":       0,

		"log_level":  "info",
		"log_format": "console",

		"windows":              []string{"7d", "30d", "90d"},
		"decay_tau_days":       14.0,
		"normalize_batch_size": 50,
		"prune_stale":          false,

		"fetch_timeout":        60 * time.Second,
		"rate_limit_ms":        2000,
		"adzuna_rate_limit_ms": 1000,
		"max_pages":            2,
		"chrome_bin":           "",
		"adzuna_app_id":        "",
		"adzuna_app_key":       "",
		"adzuna_country":       "in",
		"adzuna_base_url":      "https://api.adzuna.com/v1/api/jobs",
		"indeed_base_url":      "https://in.indeed.com",

		"dsi_oversupplied_below": d.OversuppliedBelow,
		"dsi_undersupplied_at":   d.UndersuppliedAt,
		"tightness_very_tight":   d.VeryTightAbove,
		"tightness_tight":        d.TightAbove,
		"tightness_loose":        d.LooseBelow,
		"tightness_very_loose":   d.VeryLooseBelow,
		"trend_stable_pct":       d.TrendStablePct,
		"time_to_fill_base_days": d.TimeToFillBaseDays,

		"csv_output_path": "./output/dsi.csv",

		"cron_collect":   "0 0 */4 * * *",
		"cron_normalize": "0 */5 * * * *",
		"cron_aggregate": "0 0 */12 * * *",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate rejects configurations no operation could run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "postgres":
	default:
		return errors.Wrapf(models.ErrConfiguration, "unknown store driver %q", c.StoreDriver)
	}
	switch c.LockBackend {
	case "memory", "redis":
	default:
		return errors.Wrapf(models.ErrConfiguration, "unknown lock backend %q", c.LockBackend)
	}
	if _, err := c.ParsedWindows(); err != nil {
		return err
	}
	if c.NormalizeBatchSize <= 0 {
		return errors.Wrapf(models.ErrConfiguration, "normalize batch size must be positive, got %d", c.NormalizeBatchSize)
	}
	if c.DecayTauDays <= 0 {
		return errors.Wrapf(models.ErrConfiguration, "decay tau must be positive, got %v", c.DecayTauDays)
	}
	for _, col := range c.Collections {
		if _, err := models.ParseSource(col.Source); err != nil {
			return err
		}
	}
	return nil
}

// ParsedWindows returns the configured windows in configuration order.
func (c *Config) ParsedWindows() ([]models.Window, error) {
	if len(c.Windows) == 0 {
		return nil, errors.Wrap(models.ErrConfiguration, "no time windows configured")
	}
	out := make([]models.Window, 0, len(c.Windows))
	for _, s := range c.Windows {
		w, err := models.ParseWindow(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}
