// Package config loads bot configuration from defaults, an optional config
// file, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Server   ServerConfig   `mapstructure:"server"`
}

type AppConfig struct {
	Env            string        `mapstructure:"env" validate:"oneof=development production"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"gt=0"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token" validate:"required"`
	AdminID     int64  `mapstructure:"admin_id" validate:"required"`
	WebhookURL  string `mapstructure:"webhook_url" validate:"omitempty,url"`
	WebhookPath string `mapstructure:"webhook_path" validate:"startswith=/"`
	// WebhookSecret is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string `mapstructure:"webhook_secret" validate:"omitempty,max=256"`
	PollTimeout   int    `mapstructure:"poll_timeout" validate:"gte=0"`
	Workers       int    `mapstructure:"workers" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=sqlite3 postgres"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type SessionConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BookingConfig struct {
	RadiusKm     float64 `mapstructure:"radius_km" validate:"gt=0"`
	DefaultBoxes int     `mapstructure:"default_boxes" validate:"gt=0,lte=100000"`
	CodeLength   int     `mapstructure:"code_length" validate:"gte=4,lte=32"`
	BoxPrice     string  `mapstructure:"box_price"`
}

type MirrorConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CredentialsFile string        `mapstructure:"credentials_file" validate:"required_if=Enabled true"`
	SpreadsheetID   string        `mapstructure:"spreadsheet_id" validate:"required_if=Enabled true"`
	QueueSize       int           `mapstructure:"queue_size" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// IsProduction reports whether the bot runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// WebhookMode reports whether updates are pushed by Telegram instead of polled.
func (c *Config) WebhookMode() bool {
	return c.Telegram.WebhookURL != ""
}

// Load reads .env (if present), config.yaml (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	bindEnv(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.handler_timeout", 15*time.Second)

	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_path", "/webhook")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.workers", 8)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/boxbot.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("booking.radius_km", 10.0)
	v.SetDefault("booking.default_boxes", 5)
	v.SetDefault("booking.code_length", 6)
	v.SetDefault("booking.box_price", "15 000 sum")

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.credentials_file", "creds.json")
	v.SetDefault("mirror.spreadsheet_id", "")
	v.SetDefault("mirror.queue_size", 256)
	v.SetDefault("mirror.max_retries", 3)
	v.SetDefault("mirror.base_delay", 2*time.Second)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
}

// bindEnv maps telegram.token to TELEGRAM_TOKEN and so on, and keeps the
// short variable names the deployment platform already sets.
func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("telegram.token", "TELEGRAM_TOKEN", "BOT_TOKEN")
	_ = v.BindEnv("telegram.admin_id", "TELEGRAM_ADMIN_ID", "ADMIN_ID")
	_ = v.BindEnv("telegram.webhook_secret", "TELEGRAM_WEBHOOK_SECRET", "WEBHOOK_SECRET")
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
}

func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.WebhookMode() && c.Telegram.WebhookSecret == "" {
		return errors.New("invalid config: telegram.webhook_secret is required with telegram.webhook_url")
	}
	if c.Session.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required for the redis session backend")
	}
	return nil
}

// LoadToken returns only the bot token, for tools that do not run the bot.
func LoadToken() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to load .env: %w", err)
	}
	v := viper.New()
	bindEnv(v)
	token := v.GetString("telegram.token")
	if token == "" {
		return "", errors.New("telegram token is not set (TELEGRAM_TOKEN or BOT_TOKEN)")
	}
	return token, nil
}
