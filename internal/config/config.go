package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	// HTTP
	Port            int    `mapstructure:"port"`
	APIKey          string `mapstructure:"api_key"`
	CORSAllowOrigin string `mapstructure:"cors_allow_origin"`

	// Database
	DatabaseURL string `mapstructure:"database_url"`
	DBHost      string `mapstructure:"db_host"`
	DBPort      int    `mapstructure:"db_port"`
	DBName      string `mapstructure:"db_name"`
	DBUser      string `mapstructure:"db_user"`
	DBPassword  string `mapstructure:"db_password"`

	// Trade feed
	TradeStoreURL    string        `mapstructure:"trade_store_url"`
	TradeStoreAPIKey string        `mapstructure:"trade_store_api_key"`
	RefreshSchedule  string        `mapstructure:"refresh_schedule"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`

	// Preferences
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	PrefsTTL      time.Duration `mapstructure:"prefs_ttl"`

	// Logging
	LogLevel    string `mapstructure:"log_level"`
	LogEncoding string `mapstructure:"log_encoding"`

	// Dashboard
	TotalCapital float64 `mapstructure:"total_capital"`

	// Alerts
	WebhookURL string `mapstructure:"webhook_url"`
	BotName    string `mapstructure:"bot_name"`

	// Charts
	BinanceBaseURL string `mapstructure:"binance_base_url"`
}

// Load reads .env, the environment and, when CONFIG_FILE names one, a YAML
// file. Environment variables win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 10000)
	v.SetDefault("api_key", "")
	v.SetDefault("cors_allow_origin", "*")

	v.SetDefault("database_url", "")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_name", "lab_dashboard")
	v.SetDefault("db_user", "")
	v.SetDefault("db_password", "")

	v.SetDefault("trade_store_url", "")
	v.SetDefault("trade_store_api_key", "")
	v.SetDefault("refresh_schedule", "@every 20s")
	v.SetDefault("fetch_timeout", "15s")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("prefs_ttl", "0s")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_encoding", "console")

	v.SetDefault("total_capital", 50000)

	v.SetDefault("webhook_url", "")
	v.SetDefault("bot_name", "LabDashboard")

	v.SetDefault("binance_base_url", "https://api.binance.com")
}

// ScheduleParser accepts five or six field specs and @every descriptors.
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (c *Config) Validate(log *zap.Logger) error {
	var errs []string

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT %d out of range", c.Port))
	}
	if c.DatabaseURL == "" && c.DBHost == "" {
		errs = append(errs, "DATABASE_URL or DB_HOST is required")
	}
	if _, err := ScheduleParser.Parse(c.RefreshSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("REFRESH_SCHEDULE %q: %v", c.RefreshSchedule, err))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, "FETCH_TIMEOUT must be positive")
	}
	if c.TotalCapital < 0 {
		errs = append(errs, "TOTAL_CAPITAL must not be negative")
	}
	if c.LogEncoding != "console" && c.LogEncoding != "json" {
		errs = append(errs, fmt.Sprintf("LOG_ENCODING %q must be console or json", c.LogEncoding))
	}
	for key, raw := range map[string]string{"TRADE_STORE_URL": c.TradeStoreURL, "BINANCE_BASE_URL": c.BinanceBaseURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s %q is not an absolute URL", key, raw))
		}
	}

	if c.APIKey == "" {
		log.Warn("API_KEY not set, REST API has no authentication")
	}
	if c.WebhookURL == "" {
		log.Warn("WEBHOOK_URL not set, feed outage alerts disabled")
	}
	if c.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, preferences kept in memory")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Print logs the effective configuration with secrets masked.
func (c *Config) Print(log *zap.Logger) {
	log.Info("configuration",
		zap.Int("port", c.Port),
		zap.String("api_key", mask(c.APIKey)),
		zap.String("cors_allow_origin", c.CORSAllowOrigin),
		zap.String("database", c.redactedDSN()),
		zap.String("trade_source", boolLabel(c.TradeStoreURL != "", c.TradeStoreURL, "database")),
		zap.String("trade_store_api_key", mask(c.TradeStoreAPIKey)),
		zap.String("refresh_schedule", c.RefreshSchedule),
		zap.Duration("fetch_timeout", c.FetchTimeout),
		zap.String("prefs_store", boolLabel(c.RedisAddr != "", "redis "+c.RedisAddr, "memory")),
		zap.Duration("prefs_ttl", c.PrefsTTL),
		zap.Float64("total_capital", c.TotalCapital),
		zap.String("webhook", boolLabel(c.WebhookURL != "", "configured", "not set")),
		zap.String("bot_name", c.BotName),
		zap.String("binance_base_url", c.BinanceBaseURL),
	)
}

func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) redactedDSN() string {
	u, err := url.Parse(c.DSN())
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

// --- helpers ---

func mask(secret string) string {
	if secret == "" {
		return "not set"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
