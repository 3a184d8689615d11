package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PARLAY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PARLAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PARLAY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PARLAY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PARLAY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PARLAY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PARLAY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PARLAY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PARLAY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PARLAY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PARLAY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PARLAY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PARLAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PARLAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PARLAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PARLAY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PARLAY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PARLAY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PARLAY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PARLAY_S3_REGION")
	setStr(&cfg.S3.Bucket, "PARLAY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PARLAY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PARLAY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PARLAY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PARLAY_S3_FORCE_PATH_STYLE")

	// ── Providers ──
	setStr(&cfg.Providers.BaseURL, "PARLAY_PROVIDERS_BASE_URL")
	setStr(&cfg.Providers.ApiKey, "PARLAY_PROVIDERS_API_KEY")
	setStr(&cfg.Providers.EncryptedCredentialsPath, "PARLAY_PROVIDERS_ENCRYPTED_CREDENTIALS_PATH")
	setStr(&cfg.Providers.CredentialsPassword, "PARLAY_PROVIDERS_CREDENTIALS_PASSWORD")
	setFloat64(&cfg.Providers.RequestsPerSecond, "PARLAY_PROVIDERS_REQUESTS_PER_SECOND")
	setInt(&cfg.Providers.Burst, "PARLAY_PROVIDERS_BURST")

	// ── Weather ──
	setStr(&cfg.Weather.BaseURL, "PARLAY_WEATHER_BASE_URL")
	setStr(&cfg.Weather.ApiKey, "PARLAY_WEATHER_API_KEY")

	// ── Signals ──
	setBool(&cfg.Signals.Enabled, "PARLAY_SIGNALS_ENABLED")
	setInt(&cfg.Signals.MaxConcurrent, "PARLAY_SIGNALS_MAX_CONCURRENT")
	setDuration(&cfg.Signals.FetchTimeout, "PARLAY_SIGNALS_FETCH_TIMEOUT")
	setDuration(&cfg.Signals.PrefetchTimeout, "PARLAY_SIGNALS_PREFETCH_TIMEOUT")
	setDuration(&cfg.Signals.CancelGrace, "PARLAY_SIGNALS_CANCEL_GRACE")
	setInt(&cfg.Signals.FormGames, "PARLAY_SIGNALS_FORM_GAMES")

	// ── Safety ──
	setInt(&cfg.Safety.RedErrorThreshold, "PARLAY_SAFETY_RED_ERROR_THRESHOLD")
	setInt(&cfg.Safety.RedShortageThreshold, "PARLAY_SAFETY_RED_SHORTAGE_THRESHOLD")
	setDuration(&cfg.Safety.OddsStaleAfter, "PARLAY_SAFETY_ODDS_STALE_AFTER")
	setDuration(&cfg.Safety.GamesStaleAfter, "PARLAY_SAFETY_GAMES_STALE_AFTER")
	setInt(&cfg.Safety.ApiBudgetDaily, "PARLAY_SAFETY_API_BUDGET_DAILY")
	setFloat64(&cfg.Safety.ApiBudgetRatio, "PARLAY_SAFETY_API_BUDGET_RATIO")
	setInt(&cfg.Safety.GenerationFailures, "PARLAY_SAFETY_GENERATION_FAILURE_THRESHOLD")
	setInt(&cfg.Safety.ApiFailures, "PARLAY_SAFETY_API_FAILURE_THRESHOLD")
	setDuration(&cfg.Safety.RedHold, "PARLAY_SAFETY_RED_HOLD")
	setDuration(&cfg.Safety.YellowHold, "PARLAY_SAFETY_YELLOW_HOLD")
	setInt(&cfg.Safety.DegradedMaxLegs, "PARLAY_SAFETY_DEGRADED_MAX_LEGS")

	// ── Advise ──
	setDuration(&cfg.Advise.Interval, "PARLAY_ADVISE_INTERVAL")
	setDuration(&cfg.Advise.Horizon, "PARLAY_ADVISE_HORIZON")
	setInt(&cfg.Advise.MaxLegs, "PARLAY_ADVISE_MAX_LEGS")
	setFloat64(&cfg.Advise.MinConfidence, "PARLAY_ADVISE_MIN_CONFIDENCE")

	// ── Settle ──
	setDuration(&cfg.Settle.Interval, "PARLAY_SETTLE_INTERVAL")
	setDuration(&cfg.Settle.LockTTL, "PARLAY_SETTLE_LOCK_TTL")
	setBool(&cfg.Settle.ArchiveEnabled, "PARLAY_SETTLE_ARCHIVE_ENABLED")
	setDuration(&cfg.Settle.ArchiveAfter, "PARLAY_SETTLE_ARCHIVE_AFTER")
	setStr(&cfg.Settle.ArchiveCron, "PARLAY_SETTLE_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PARLAY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PARLAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PARLAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PARLAY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PARLAY_MODE")
	setStr(&cfg.LogLevel, "PARLAY_LOG_LEVEL")
	setStr(&cfg.LogFile, "PARLAY_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
