package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/cppla/dailyink/models"
	"github.com/cppla/dailyink/unlock"
)

// DefaultPath is where Load looks for the config file when no path is given.
var DefaultPath = filepath.Join("config", "config.yaml")

// AppConfig holds file and environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via the config file or the environment.
// It is loaded once at boot and treated as read-only afterwards.
type AppConfig struct {
	App      AppSection      `yaml:"app"`
	Database DatabaseSection `yaml:"database"`
	Redis    RedisSection    `yaml:"redis"`
	Log      LogSection      `yaml:"log"`
	SMTP     SMTPSection     `yaml:"smtp"`
	Notify   NotifySection   `yaml:"notify"`
	Quota    QuotaConfig     `yaml:"quota"`
	Unlock   UnlockConfig    `yaml:"unlock"`
	Streak   StreakConfig    `yaml:"streak"`
}

type AppSection struct {
	Port               string   `yaml:"port" envconfig:"APP_PORT"`
	JWTSecret          string   `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTIssuer          string   `yaml:"jwt_issuer" envconfig:"JWT_ISSUER"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute" envconfig:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins     []string `yaml:"allowed_origins" envconfig:"CORS_ALLOWED_ORIGINS"`
	GinMode            string   `yaml:"gin_mode" envconfig:"GIN_MODE"`
	GinLogPath         string   `yaml:"gin_log_path" envconfig:"GIN_LOG_PATH"`
	RequestTimeoutSec  int      `yaml:"request_timeout_sec" envconfig:"REQUEST_TIMEOUT_SEC"`
}

type DatabaseSection struct {
	// Driver is one of mysql, postgres or sqlite.
	Driver   string `yaml:"driver" envconfig:"DB_DRIVER"`
	URI      string `yaml:"uri" envconfig:"DATABASE_URI"`
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     string `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
	// MaxRetries bounds retries of a transaction that failed on a transient storage error.
	MaxRetries int `yaml:"max_retries" envconfig:"DB_MAX_RETRIES"`
}

type RedisSection struct {
	Host     string `yaml:"host" envconfig:"REDIS_HOST"`
	Port     int    `yaml:"port" envconfig:"REDIS_PORT"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	Disabled bool   `yaml:"disabled" envconfig:"REDIS_DISABLED"`
}

type LogSection struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Path       string `yaml:"path" envconfig:"LOG_PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" envconfig:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"LOG_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" envconfig:"LOG_COMPRESS"`
}

// SMTP for unlock notification emails
type SMTPSection struct {
	Host     string `yaml:"host" envconfig:"SMTP_HOST"`
	Port     int    `yaml:"port" envconfig:"SMTP_PORT"`
	Username string `yaml:"username" envconfig:"SMTP_USERNAME"`
	Password string `yaml:"password" envconfig:"SMTP_PASSWORD"`
	From     string `yaml:"from" envconfig:"SMTP_FROM"`
	FromName string `yaml:"from_name" envconfig:"SMTP_FROM_NAME"`
	TLS      bool   `yaml:"tls" envconfig:"SMTP_TLS"`
}

type NotifySection struct {
	// Driver is one of log, smtp or amqp.
	Driver       string `yaml:"driver" envconfig:"NOTIFY_DRIVER"`
	AMQPURL      string `yaml:"amqp_url" envconfig:"NOTIFY_AMQP_URL"`
	AMQPExchange string `yaml:"amqp_exchange" envconfig:"NOTIFY_AMQP_EXCHANGE"`
	TimeoutSec   int    `yaml:"timeout_sec" envconfig:"NOTIFY_TIMEOUT_SEC"`
}

// CategoryQuota is the refill rule for one category under one tier.
type CategoryQuota struct {
	Cadence models.Cadence `yaml:"cadence" json:"cadence"`
	Limit   int            `yaml:"limit" json:"limit"`
}

// QuotaConfig holds per-tier, per-category refill rules and text length limits.
type QuotaConfig struct {
	Tiers     map[models.Tier]map[models.Category]CategoryQuota `yaml:"tiers" ignored:"true"`
	MaxLength map[models.Category]int                           `yaml:"max_length" ignored:"true"`
}

// UnlockConfig holds the unlock thresholds and the cross-category eligibility mapping.
type UnlockConfig struct {
	RequiredTotal int                                   `yaml:"required_total" envconfig:"UNLOCK_REQUIRED_TOTAL"`
	RequiredB     int                                   `yaml:"required_b" envconfig:"UNLOCK_REQUIRED_B"`
	Eligibility   map[models.Category][]models.Category `yaml:"eligibility" ignored:"true"`
}

type StreakConfig struct {
	BonusAmount int    `yaml:"bonus_amount" envconfig:"STREAK_BONUS_AMOUNT"`
	Reason      string `yaml:"reason" envconfig:"STREAK_BONUS_REASON"`
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
// Precedence: config file -> defaults -> environment variable overrides.
func Load(path string) AppConfig {
	if loaded {
		return cfg
	}
	c, err := LoadFile(path)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if c.App.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in the config file or environment variables")
	}
	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it from DefaultPath if necessary.
func Get() AppConfig {
	if !loaded {
		return Load(DefaultPath)
	}
	return cfg
}

// Set replaces the cached configuration. Intended for tests and tooling.
func Set(c AppConfig) {
	cfg = c
	loaded = true
}

// LoadFile reads path (a missing file is not an error), applies defaults and environment overrides, and validates.
func LoadFile(path string) (AppConfig, error) {
	var c AppConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &c); err != nil {
				return c, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// silently ignore missing file
		default:
			return c, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyDefaults(&c)

	// Unset variables leave file values and defaults untouched.
	if err := envconfig.Process("", &c); err != nil {
		return c, fmt.Errorf("environment overrides: %w", err)
	}

	return c, c.Validate()
}

// Default returns a configuration holding only defaults.
func Default() AppConfig {
	var c AppConfig
	applyDefaults(&c)
	return c
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.App.Port == "" {
		c.App.Port = "8080"
	}
	if c.App.GinMode == "" {
		c.App.GinMode = "release"
	}
	if c.App.GinLogPath == "" {
		c.App.GinLogPath = "logs/go_gin.log"
	}
	if c.App.RateLimitPerMinute == 0 {
		c.App.RateLimitPerMinute = 60
	}
	if len(c.App.AllowedOrigins) == 0 {
		c.App.AllowedOrigins = []string{"*"}
	}
	if c.App.RequestTimeoutSec == 0 {
		c.App.RequestTimeoutSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == "" {
		switch c.Database.Driver {
		case "postgres":
			c.Database.Port = "5432"
		default:
			c.Database.Port = "3306"
		}
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "dailyink"
	}
	if c.Database.MaxRetries == 0 {
		c.Database.MaxRetries = 3
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Notify.Driver == "" {
		c.Notify.Driver = "log"
	}
	if c.Notify.AMQPExchange == "" {
		c.Notify.AMQPExchange = "dailyink.events"
	}
	if c.Notify.TimeoutSec == 0 {
		c.Notify.TimeoutSec = 10
	}

	if len(c.Quota.Tiers) == 0 {
		c.Quota.Tiers = map[models.Tier]map[models.Category]CategoryQuota{
			models.TierStandard: {
				models.CategoryA: {Cadence: models.CadenceDaily, Limit: 1},
				models.CategoryB: {Cadence: models.CadenceWeekly, Limit: 1},
			},
			models.TierPromoted: {
				models.CategoryA: {Cadence: models.CadenceDaily, Limit: 1},
				models.CategoryB: {Cadence: models.CadenceDaily, Limit: 1},
			},
		}
	}
	if len(c.Quota.MaxLength) == 0 {
		c.Quota.MaxLength = map[models.Category]int{
			models.CategoryA: 300,
			models.CategoryB: 1000,
		}
	}

	if c.Unlock.RequiredTotal == 0 {
		c.Unlock.RequiredTotal = 3
	}
	if c.Unlock.RequiredB == 0 {
		c.Unlock.RequiredB = 1
	}
	if len(c.Unlock.Eligibility) == 0 {
		c.Unlock.Eligibility = map[models.Category][]models.Category{
			models.CategoryA: {models.CategoryA, models.CategoryB},
			models.CategoryB: {models.CategoryB},
		}
	}

	if c.Streak.BonusAmount == 0 {
		c.Streak.BonusAmount = 1
	}
	if c.Streak.Reason == "" {
		c.Streak.Reason = "weekly_streak"
	}
}

// Validate checks the quota policy, thresholds and eligibility mapping.
func (c AppConfig) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of mysql, postgres, sqlite", c.Database.Driver))
	}
	switch c.Notify.Driver {
	case "log", "smtp", "amqp":
	default:
		errs = append(errs, fmt.Errorf("notify.driver %q is not one of log, smtp, amqp", c.Notify.Driver))
	}

	for _, tier := range []models.Tier{models.TierStandard, models.TierPromoted} {
		rules, ok := c.Quota.Tiers[tier]
		if !ok {
			errs = append(errs, fmt.Errorf("quota.tiers: missing tier %q", tier))
			continue
		}
		for _, cat := range models.Categories {
			q, ok := rules[cat]
			if !ok {
				errs = append(errs, fmt.Errorf("quota.tiers.%s: missing category %q", tier, cat))
				continue
			}
			if q.Cadence != models.CadenceDaily && q.Cadence != models.CadenceWeekly {
				errs = append(errs, fmt.Errorf("quota.tiers.%s.%s: cadence %q is not daily or weekly", tier, cat, q.Cadence))
			}
			if q.Limit < 0 {
				errs = append(errs, fmt.Errorf("quota.tiers.%s.%s: limit must not be negative", tier, cat))
			}
		}
	}
	for tier := range c.Quota.Tiers {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("quota.tiers: unknown tier %q", tier))
		}
	}
	for _, cat := range models.Categories {
		if c.Quota.MaxLength[cat] <= 0 {
			errs = append(errs, fmt.Errorf("quota.max_length.%s must be positive", cat))
		}
	}

	if _, err := c.UnlockRules(); err != nil {
		errs = append(errs, err)
	}
	if c.Streak.BonusAmount < 0 {
		errs = append(errs, errors.New("streak.bonus_amount must not be negative"))
	}

	return errors.Join(errs...)
}

// UnlockRules builds the unlock engine's rules from the unlock section.
func (c AppConfig) UnlockRules() (unlock.Rules, error) {
	return unlock.NewRules(c.Unlock.RequiredTotal, c.Unlock.RequiredB, c.Unlock.Eligibility)
}

// CategoryQuota returns the refill rule for a tier and category.
func (q QuotaConfig) CategoryQuota(tier models.Tier, cat models.Category) (CategoryQuota, bool) {
	rules, ok := q.Tiers[tier]
	if !ok {
		rules, ok = q.Tiers[models.TierStandard]
		if !ok {
			return CategoryQuota{}, false
		}
	}
	cq, ok := rules[cat]
	return cq, ok
}

// IsDebug reports whether gin runs in debug mode.
func (a AppSection) IsDebug() bool {
	return strings.EqualFold(a.GinMode, "debug")
}
