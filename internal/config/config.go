package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server        ServerConfig
	Log           LogConfig
	MongoDB       MongoDBConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	WhatsApp      WhatsAppConfig
	Sheets        SheetsConfig
	Locations     LocationConfig
	Scheduler     SchedulerConfig
	Notifications NotificationConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RedisConfig enables cross-instance stock locks when Address is set.
type RedisConfig struct {
	Address string
	LockTTL time.Duration
}

// KafkaConfig enables workflow event publication when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
// Notifications are only sent over WhatsApp when AccessToken is set.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
}

// Enabled reports whether WhatsApp delivery is configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// SheetsConfig contains configuration required to export stock reports to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the sheet export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// LocationConfig names the two operational locations of the packing workflow.
type LocationConfig struct {
	Store   string
	Packing string
}

// SchedulerConfig holds cron expressions for periodic jobs.
type SchedulerConfig struct {
	LowStockCron    string
	StockExportCron string
	Timezone        string
}

// NotificationConfig sizes the asynchronous fan-out.
type NotificationConfig struct {
	Buffer  int
	Timeout time.Duration
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	lockTTL, err := getDurationWithDefault("REDIS_LOCK_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := getDurationWithDefault("NOTIFICATION_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	buffer, err := strconv.Atoi(getenvWithDefault("NOTIFICATION_BUFFER", "256"))
	if err != nil {
		return nil, fmt.Errorf("NOTIFICATION_BUFFER: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "packflow"),
		},
		Redis: RedisConfig{
			Address: os.Getenv("REDIS_ADDRESS"),
			LockTTL: lockTTL,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenvWithDefault("KAFKA_TOPIC", "packflow.workflow-events"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Locations: LocationConfig{
			Store:   getenvWithDefault("STORE_LOCATION_ID", "materials_store"),
			Packing: getenvWithDefault("PACKING_LOCATION_ID", "packing_floor"),
		},
		Scheduler: SchedulerConfig{
			LowStockCron:    getenvWithDefault("LOW_STOCK_CRON", "0 7 * * *"),
			StockExportCron: getenvWithDefault("STOCK_EXPORT_CRON", "0 20 * * 5"),
			Timezone:        getenvWithDefault("TIMEZONE", "UTC"),
		},
		Notifications: NotificationConfig{
			Buffer:  buffer,
			Timeout: notifyTimeout,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	if c.Locations.Store == "" || c.Locations.Packing == "" {
		return errors.New("STORE_LOCATION_ID and PACKING_LOCATION_ID must not be empty")
	}
	if c.Locations.Store == c.Locations.Packing {
		return errors.New("STORE_LOCATION_ID and PACKING_LOCATION_ID must differ")
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("KAFKA_TOPIC must be provided when KAFKA_BROKERS is set")
	}

	if c.WhatsApp.AccessToken != "" && c.WhatsApp.PhoneNumberID == "" {
		return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided with WHATSAPP_TOKEN")
	}

	if c.Scheduler.LowStockCron == "" {
		return errors.New("LOW_STOCK_CRON must be provided")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Scheduler.Timezone, err)
	}

	if c.Notifications.Buffer <= 0 {
		return errors.New("NOTIFICATION_BUFFER must be positive")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
