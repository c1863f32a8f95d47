// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token         string  `yaml:"token"`
	Mode          string  `yaml:"mode"` // polling | noop
	Username      string  `yaml:"username"`
	Workers       int     `yaml:"workers"` // polling workers
	OwnerID       int64   `yaml:"owner_id"`
	OwnerUsername string  `yaml:"owner_username"`
	AdminIDs      []int64 `yaml:"admin_ids"`
	// SendRate caps outbound messages per second across all chats.
	SendRate  float64 `yaml:"send_rate"`
	SendBurst int     `yaml:"send_burst"`
}

// Bot modes. ModeNoop logs outbound messages and does not poll.
const (
	ModePolling = "polling"
	ModeNoop    = "noop"
)

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// SessionConfig holds the user-client credentials used for stock accounts.
type SessionConfig struct {
	AppID          int           `yaml:"app_id"`
	AppHash        string        `yaml:"app_hash"`
	Dir            string        `yaml:"dir"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
}

type ShopConfig struct {
	Price int64  `yaml:"price"`
	UPIID string `yaml:"upi_id"`
	// LowStock triggers an owner alert when in_stock falls to this level.
	LowStock int `yaml:"low_stock"`
}

type AdminConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaymentConfig struct {
	Razorpay struct {
		KeyID         string `yaml:"key_id"`
		KeySecret     string `yaml:"key_secret"`
		WebhookSecret string `yaml:"webhook_secret"`
		BaseURL       string `yaml:"base_url"`
		Currency      string `yaml:"currency"`
	} `yaml:"razorpay"`
}

type SchedulerConfig struct {
	StockCheckInterval time.Duration `yaml:"stock_check_interval"`
	UTRReminderAfter   time.Duration `yaml:"utr_reminder_after"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
	Shop      ShopConfig      `yaml:"shop"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev, reads the yaml file, loads .env and
// applies environment overrides.
func LoadConfig() (*Config, error) {
	var configPath string
	var envPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&envPath, "env", ".env", "path to dotenv file (optional)")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// A missing .env is fine; the process env still applies.
	_ = godotenv.Load(envPath)

	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Load reads path (if it exists), then applies env overrides, defaults and
// validation.
func Load(path string) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("API_TOKEN", &cfg.Bot.Token)
	str("OWNER_USERNAME", &cfg.Bot.OwnerUsername)
	str("API_HASH", &cfg.Session.AppHash)
	str("SESSIONS_DIR", &cfg.Session.Dir)
	str("UPI_ID", &cfg.Shop.UPIID)
	str("RAZORPAY_KEY_ID", &cfg.Payment.Razorpay.KeyID)
	str("RAZORPAY_KEY_SECRET", &cfg.Payment.Razorpay.KeySecret)
	str("WEBHOOK_SECRET", &cfg.Payment.Razorpay.WebhookSecret)
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret)
	str("ADMIN_PASSWORD", &cfg.Admin.Password)

	if v := strings.TrimSpace(os.Getenv("API_ID")); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("API_ID: %w", err)
		}
		cfg.Session.AppID = id
	}
	if v := strings.TrimSpace(os.Getenv("OWNER_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OWNER_ID: %w", err)
		}
		cfg.Bot.OwnerID = id
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = ModePolling
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.SendRate <= 0 {
		cfg.Bot.SendRate = 25
	}
	if cfg.Bot.SendBurst <= 0 {
		cfg.Bot.SendBurst = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Session.Dir == "" {
		cfg.Session.Dir = "sessions"
	}
	if cfg.Session.GracePeriod <= 0 {
		cfg.Session.GracePeriod = 300 * time.Second
	}
	if cfg.Session.ConnectTimeout <= 0 {
		cfg.Session.ConnectTimeout = 10 * time.Second
	}
	if cfg.Session.CallTimeout <= 0 {
		cfg.Session.CallTimeout = 15 * time.Second
	}
	if cfg.Shop.Price <= 0 {
		cfg.Shop.Price = 45
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "owner"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Payment.Razorpay.BaseURL == "" {
		cfg.Payment.Razorpay.BaseURL = "https://api.razorpay.com/v1"
	}
	if cfg.Payment.Razorpay.Currency == "" {
		cfg.Payment.Razorpay.Currency = "INR"
	}
	if cfg.Scheduler.StockCheckInterval <= 0 {
		cfg.Scheduler.StockCheckInterval = 10 * time.Minute
	}
	if cfg.Scheduler.UTRReminderAfter <= 0 {
		cfg.Scheduler.UTRReminderAfter = 30 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" && c.Bot.Mode != ModeNoop {
		errs = append(errs, errors.New("bot.token (API_TOKEN) is required"))
	}
	if c.Bot.Mode != ModePolling && c.Bot.Mode != ModeNoop {
		errs = append(errs, fmt.Errorf("bot.mode %q is not one of polling, noop", c.Bot.Mode))
	}
	if c.Bot.OwnerID == 0 {
		errs = append(errs, errors.New("bot.owner_id (OWNER_ID) is required"))
	}
	if c.Session.AppID == 0 || c.Session.AppHash == "" {
		errs = append(errs, errors.New("session.app_id and session.app_hash (API_ID, API_HASH) are required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required"))
	}
	if c.Admin.Port > 0 && c.Admin.JWTSecret == "" {
		errs = append(errs, errors.New("admin.jwt_secret is required when admin.port is set"))
	}
	return errors.Join(errs...)
}

// IsOwner reports whether tgID may run owner commands.
func (c *Config) IsOwner(tgID int64) bool {
	if tgID == c.Bot.OwnerID {
		return true
	}
	for _, id := range c.Bot.AdminIDs {
		if id == tgID {
			return true
		}
	}
	return false
}

// normalizeTTL is used for the dialogue state TTL.
func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 15 * time.Minute
	}
	return d
}
