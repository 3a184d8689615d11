// Package config defines the top-level configuration for the parlay
// engine daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PARLAY_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Providers ProvidersConfig `toml:"providers"`
	Weather   WeatherConfig   `toml:"weather"`
	Signals   SignalsConfig   `toml:"signals"`
	Safety    SafetyConfig    `toml:"safety"`
	Advise    AdviseConfig    `toml:"advise"`
	Settle    SettleConfig    `toml:"settle"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	LogFile   string          `toml:"log_file"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ProvidersConfig holds the sports-data provider endpoint and credentials.
type ProvidersConfig struct {
	BaseURL                  string  `toml:"base_url"`
	ApiKey                   string  `toml:"api_key"`
	EncryptedCredentialsPath string  `toml:"encrypted_credentials_path"`
	CredentialsPassword      string  `toml:"credentials_password"`
	RequestsPerSecond        float64 `toml:"requests_per_second"`
	Burst                    int     `toml:"burst"`
}

// WeatherConfig holds the weather provider endpoint and credentials.
type WeatherConfig struct {
	BaseURL string `toml:"base_url"`
	ApiKey  string `toml:"api_key"`
}

// SignalsConfig holds external-signal prefetch parameters.
type SignalsConfig struct {
	Enabled         bool     `toml:"enabled"`
	MaxConcurrent   int      `toml:"max_concurrent"`
	FetchTimeout    duration `toml:"fetch_timeout"`
	PrefetchTimeout duration `toml:"prefetch_timeout"`
	CancelGrace     duration `toml:"cancel_grace"`
	FormGames       int      `toml:"form_games"`
}

// SafetyConfig holds the health-gate thresholds and hold windows.
type SafetyConfig struct {
	RedErrorThreshold    int      `toml:"red_error_threshold"`
	RedShortageThreshold int      `toml:"red_shortage_threshold"`
	OddsStaleAfter       duration `toml:"odds_stale_after"`
	GamesStaleAfter      duration `toml:"games_stale_after"`
	ApiBudgetDaily       int      `toml:"api_budget_daily"`
	ApiBudgetRatio       float64  `toml:"api_budget_ratio"`
	GenerationFailures   int      `toml:"generation_failure_threshold"`
	ApiFailures          int      `toml:"api_failure_threshold"`
	RedHold              duration `toml:"red_hold"`
	YellowHold           duration `toml:"yellow_hold"`
	DegradedMaxLegs      int      `toml:"degraded_max_legs"`
}

// AdviseConfig holds the pick-advisory loop parameters.
type AdviseConfig struct {
	Interval      duration `toml:"interval"`
	Horizon       duration `toml:"horizon"`
	MaxLegs       int      `toml:"max_legs"`
	MinConfidence float64  `toml:"min_confidence"`
}

// SettleConfig holds the settlement sweep parameters.
type SettleConfig struct {
	Interval       duration `toml:"interval"`
	LockTTL        duration `toml:"lock_ttl"`
	ArchiveEnabled bool     `toml:"archive_enabled"`
	ArchiveAfter   duration `toml:"archive_after"`
	ArchiveCron    string   `toml:"archive_cron"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "parlay",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "parlay-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Providers: ProvidersConfig{
			BaseURL:           "https://api.sportsdata.io/v3",
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.openweathermap.org/data/2.5",
		},
		Signals: SignalsConfig{
			Enabled:         true,
			MaxConcurrent:   4,
			FetchTimeout:    duration{2 * time.Second},
			PrefetchTimeout: duration{8 * time.Second},
			CancelGrace:     duration{500 * time.Millisecond},
			FormGames:       5,
		},
		Safety: SafetyConfig{
			RedErrorThreshold:    5,
			RedShortageThreshold: 3,
			OddsStaleAfter:       duration{15 * time.Minute},
			GamesStaleAfter:      duration{time.Hour},
			ApiBudgetDaily:       5000,
			ApiBudgetRatio:       0.85,
			GenerationFailures:   3,
			ApiFailures:          8,
			RedHold:              duration{5 * time.Minute},
			YellowHold:           duration{time.Minute},
			DegradedMaxLegs:      3,
		},
		Advise: AdviseConfig{
			Interval:      duration{5 * time.Minute},
			Horizon:       duration{24 * time.Hour},
			MaxLegs:       6,
			MinConfidence: 55,
		},
		Settle: SettleConfig{
			Interval:       duration{time.Minute},
			LockTTL:        duration{30 * time.Second},
			ArchiveEnabled: false,
			ArchiveAfter:   duration{720 * time.Hour},
			ArchiveCron:    "30 4 * * *",
		},
		Notify: NotifyConfig{
			Events: []string{"safety_red", "safety_recovered", "settlement_sweep", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
		LogFile:  "",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"advise": true,
	"settle": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: advise, settle, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only needed when the settlement archive is on.
	if c.Settle.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when settle.archive_enabled is set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when settle.archive_enabled is set")
		}
	}

	// Providers are required whenever signal fetching is on.
	if c.Signals.Enabled {
		if c.Providers.BaseURL == "" {
			errs = append(errs, "providers: base_url must not be empty while signals are enabled")
		}
		if c.Providers.RequestsPerSecond <= 0 {
			errs = append(errs, "providers: requests_per_second must be > 0")
		}
		if c.Providers.Burst < 1 {
			errs = append(errs, "providers: burst must be >= 1")
		}
	}
	if c.Providers.EncryptedCredentialsPath != "" && c.Providers.CredentialsPassword == "" {
		errs = append(errs, "providers: credentials_password is required when encrypted_credentials_path is set")
	}

	// Signals
	if c.Signals.MaxConcurrent < 1 {
		errs = append(errs, "signals: max_concurrent must be >= 1")
	}
	if c.Signals.FetchTimeout.Duration <= 0 {
		errs = append(errs, "signals: fetch_timeout must be > 0")
	}
	if c.Signals.PrefetchTimeout.Duration <= 0 {
		errs = append(errs, "signals: prefetch_timeout must be > 0")
	}
	if c.Signals.PrefetchTimeout.Duration < c.Signals.FetchTimeout.Duration {
		errs = append(errs, "signals: prefetch_timeout must not be shorter than fetch_timeout")
	}
	if c.Signals.CancelGrace.Duration < 0 {
		errs = append(errs, "signals: cancel_grace must be >= 0")
	}
	if c.Signals.FormGames < 1 {
		errs = append(errs, "signals: form_games must be >= 1")
	}

	// Safety
	if c.Safety.RedErrorThreshold < 1 {
		errs = append(errs, "safety: red_error_threshold must be >= 1")
	}
	if c.Safety.RedShortageThreshold < 1 {
		errs = append(errs, "safety: red_shortage_threshold must be >= 1")
	}
	if c.Safety.OddsStaleAfter.Duration <= 0 {
		errs = append(errs, "safety: odds_stale_after must be > 0")
	}
	if c.Safety.GamesStaleAfter.Duration <= 0 {
		errs = append(errs, "safety: games_stale_after must be > 0")
	}
	if c.Safety.ApiBudgetDaily < 1 {
		errs = append(errs, "safety: api_budget_daily must be >= 1")
	}
	if c.Safety.ApiBudgetRatio <= 0 || c.Safety.ApiBudgetRatio > 1 {
		errs = append(errs, fmt.Sprintf("safety: api_budget_ratio must be in (0,1], got %v", c.Safety.ApiBudgetRatio))
	}
	if c.Safety.GenerationFailures < 1 {
		errs = append(errs, "safety: generation_failure_threshold must be >= 1")
	}
	if c.Safety.ApiFailures < 1 {
		errs = append(errs, "safety: api_failure_threshold must be >= 1")
	}
	if c.Safety.RedHold.Duration <= 0 {
		errs = append(errs, "safety: red_hold must be > 0")
	}
	if c.Safety.YellowHold.Duration <= 0 {
		errs = append(errs, "safety: yellow_hold must be > 0")
	}
	if c.Safety.DegradedMaxLegs < 1 {
		errs = append(errs, "safety: degraded_max_legs must be >= 1")
	}

	// Advise
	if c.Advise.Interval.Duration <= 0 {
		errs = append(errs, "advise: interval must be > 0")
	}
	if c.Advise.Horizon.Duration <= 0 {
		errs = append(errs, "advise: horizon must be > 0")
	}
	if c.Advise.MaxLegs < 1 {
		errs = append(errs, "advise: max_legs must be >= 1")
	}
	if c.Advise.MinConfidence < 0 || c.Advise.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("advise: min_confidence must be 0-100, got %v", c.Advise.MinConfidence))
	}

	// Settle
	if c.Settle.Interval.Duration <= 0 {
		errs = append(errs, "settle: interval must be > 0")
	}
	if c.Settle.LockTTL.Duration <= 0 {
		errs = append(errs, "settle: lock_ttl must be > 0")
	}
	if c.Settle.ArchiveEnabled && c.Settle.ArchiveAfter.Duration <= 0 {
		errs = append(errs, "settle: archive_after must be > 0 when archive_enabled is set")
	}
	if c.Settle.ArchiveEnabled && strings.TrimSpace(c.Settle.ArchiveCron) == "" {
		errs = append(errs, "settle: archive_cron must not be empty when archive_enabled is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
