package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"practiceapi/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Auction    AuctionConfig    `yaml:"auction"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Google     GoogleConfig     `yaml:"google"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string        `yaml:"path"`
	BusyTimeoutMS int           `yaml:"busy_timeout_ms"`
	TxRetry       TxRetryConfig `yaml:"tx_retry"`
}

// TxRetryConfig controls how often a transaction is retried when sqlite reports the database as busy.
type TxRetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey binds an API key to the profile that acts when the key is presented.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Profile     string   `yaml:"profile"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	// CapacityMode is "sum" (default) or "sweep".
	CapacityMode string `yaml:"capacity_mode"`
}

type AuctionConfig struct {
	DefaultCredits   int           `yaml:"default_credits"`
	SettledCacheTTL  time.Duration `yaml:"settled_cache_ttl"`
	MaxListingLength time.Duration `yaml:"max_listing_length"`
	// BidLimit bids a single bidder may place per BidWindow; 0 disables the check.
	BidLimit  int           `yaml:"bid_limit"`
	BidWindow time.Duration `yaml:"bid_window"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
}

type TelegramConfig struct {
	BotToken      string  `yaml:"bot_token"`
	NotifyChatIDs []int64 `yaml:"notify_chat_ids"`
	// RateLimitMessages per RateLimitWindow for each chat user of the command bot; 0 disables it.
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Booking.CapacityMode {
	case models.CapacityModeSum, models.CapacityModeSweep:
	default:
		return fmt.Errorf("unknown booking capacity_mode %q", c.Booking.CapacityMode)
	}

	if c.Auction.DefaultCredits < 0 {
		return errors.New("auction default_credits must not be negative")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key for profile '%s' is empty", k.Profile)
		}
		if strings.TrimSpace(k.Profile) == "" {
			return fmt.Errorf("api key '%s' has no profile", k.Key)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key found for profile '%s'", k.Profile)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}
	if c.Database.TxRetry.MaxRetries == 0 {
		c.Database.TxRetry.MaxRetries = 3
	}
	if c.Database.TxRetry.InitialDelay == 0 {
		c.Database.TxRetry.InitialDelay = 20 * time.Millisecond
	}
	if c.Database.TxRetry.MaxDelay == 0 {
		c.Database.TxRetry.MaxDelay = time.Second
	}

	if c.Booking.CapacityMode == "" {
		c.Booking.CapacityMode = models.CapacityModeSum
	}

	if c.Auction.DefaultCredits == 0 {
		c.Auction.DefaultCredits = models.DefaultCredits
	}
	if c.Auction.SettledCacheTTL == 0 {
		c.Auction.SettledCacheTTL = models.SettledListingCacheTTL
	}
	if c.Auction.MaxListingLength == 0 {
		c.Auction.MaxListingLength = models.MaxListingLength
	}

	if c.Auction.BidLimit > 0 && c.Auction.BidWindow == 0 {
		c.Auction.BidWindow = time.Minute
	}

	if c.Telegram.RateLimitMessages > 0 && c.Telegram.RateLimitWindow == 0 {
		c.Telegram.RateLimitWindow = time.Minute
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "practiceapi.events"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
