// Package config loads the process-wide Config value once at startup
// from the environment (per spec §6) and passes it explicitly into
// every component, rather than letting components read os.Getenv
// themselves.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env is the deployment environment. Staging and production refuse to
// start the admin/metrics surface without an ADMIN_TOKEN.
type Env string

const (
	EnvDevelopment Env = "development"
	EnvStaging     Env = "staging"
	EnvProduction  Env = "production"
)

// Config is the fully-resolved process configuration, built once in
// Load and threaded into every component by value/pointer.
type Config struct {
	ArchiveRoot string `env:"ARCHIVE_ROOT" envDefault:"./archive"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://./healtharchive.db"`
	Env         Env    `env:"ENV" envDefault:"development"`
	AdminToken  string `env:"ADMIN_TOKEN"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	SearchRankingVersion string `env:"SEARCH_RANKING_VERSION" envDefault:"v3"`
	SearchFTSTokenizer   string `env:"SEARCH_FTS_TOKENIZER" envDefault:"simple"`

	ReplayBaseURL string `env:"REPLAY_BASE_URL"`

	UsageMetricsEnabled    bool `env:"USAGE_METRICS_ENABLED" envDefault:"false"`
	UsageMetricsWindowDays int  `env:"USAGE_METRICS_WINDOW_DAYS" envDefault:"30"`

	RedisURL string `env:"REDIS_URL"`

	ServerHost string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`

	// WorkerPollInterval is how often the worker loop checks for
	// eligible jobs (spec §4.D default 30s).
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"30s"`
	// MaxRetries bounds ArchiveJob.retry_count (spec §3 default 3).
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`
	// InfraErrorCooldown is the per-job cooldown after an infra_error
	// crawler outcome before the job is eligible for retry again.
	InfraErrorCooldown time.Duration `env:"INFRA_ERROR_COOLDOWN" envDefault:"10m"`
	// DiskHeadroomMaxUsedPercent is the disk-usage threshold above
	// which the worker skips an iteration entirely (spec default 85%).
	DiskHeadroomMaxUsedPercent float64 `env:"DISK_HEADROOM_MAX_USED_PERCENT" envDefault:"85"`

	// JobRegistryPath points at the optional YAML file describing
	// per-source job templates (spec §4.B). Empty means "use built-in
	// defaults only".
	JobRegistryPath string `env:"JOB_REGISTRY_PATH"`

	// CrawlerBinary is the executable launched by the job runner (the
	// external zimit/Docker crawler entrypoint).
	CrawlerBinary string `env:"CRAWLER_BINARY" envDefault:"crawler"`

	// ChangeTrackerBatchCap bounds how many page groups the worker
	// loop change-tracks per job (spec §4.D step 6).
	ChangeTrackerBatchCap int `env:"CHANGE_TRACKER_BATCH_CAP" envDefault:"200"`

	// StaleJobThreshold is how old a `running` job must be before
	// recover-stale-jobs considers it abandoned (spec §4.A).
	StaleJobThreshold time.Duration `env:"STALE_JOB_THRESHOLD" envDefault:"45m"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}
	return cfg, nil
}

// Validate enforces the staging/production admin-token rule from §7:
// "Admin endpoints without a configured token in prod/staging: refuse
// with 500 and a clear message at startup."
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	switch c.Env {
	case EnvStaging, EnvProduction:
		if strings.TrimSpace(c.AdminToken) == "" {
			return fmt.Errorf("ADMIN_TOKEN must be set when ENV=%s", c.Env)
		}
	case EnvDevelopment, "":
		// dev may leave ADMIN_TOKEN unset
	default:
		return fmt.Errorf("unknown ENV value: %s", c.Env)
	}
	return nil
}

// AdminEnabled reports whether the admin/metrics surface should be
// mounted at all (it always is, but refuses auth without a token
// outside development).
func (c *Config) AdminEnabled() bool {
	return true
}
