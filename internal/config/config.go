package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Telegram TelegramConfig
	Polygon  PolygonConfig
	Gemini   GeminiConfig
	Monitor  MonitorConfig
	Dedup    DedupConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string   `validate:"required,numeric"`
	Host           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// RedisConfig holds Redis configuration for the fingerprint backend
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"min=0"`
}

// KafkaConfig holds Kafka configuration. Empty Brokers disables the bus.
type KafkaConfig struct {
	Brokers      []string
	EventsTopic  string
	CommandTopic string
	GroupID      string
}

// TelegramConfig holds Telegram Bot API configuration
type TelegramConfig struct {
	BotToken       string
	BaseURL        string `validate:"required,url"`
	AllowedChatIDs []int64
	PollTimeout    time.Duration `validate:"min=0"`
}

// PolygonConfig holds market data provider configuration
type PolygonConfig struct {
	APIKey  string
	Timeout time.Duration `validate:"gt=0"`
}

// GeminiConfig holds analysis model configuration. Empty APIKey disables analysis.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration `validate:"gt=0"`
}

// MonitorConfig holds the process-wide monitoring defaults and scheduler tuning
type MonitorConfig struct {
	CheckIntervalMinutes        int     `validate:"min=1,max=1440"`
	PriceChangeThresholdPercent float64 `validate:"gt=0"`
	NotifyAllNews               bool
	Resolution                  time.Duration `validate:"gte=1s"`
	MaxConcurrentFetches        int           `validate:"min=1"`
	CycleTimeout                time.Duration `validate:"gt=0"`
	ShutdownTimeout             time.Duration `validate:"gt=0"`
	DisambiguationTTL           time.Duration `validate:"gt=0"`
	StoreBackend                string        `validate:"oneof=postgres memory"`
	SeedFile                    string
	SeedChatID                  int64
}

// DedupConfig holds fingerprint store configuration
type DedupConfig struct {
	Backend       string        `validate:"oneof=postgres redis memory"`
	Horizon       time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
	PriceWindow   time.Duration `validate:"gt=0"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn error"`
	Format string `validate:"oneof=console json"`
}

// Load reads configuration from environment variables, after merging an
// optional .env file from the working directory
func Load() (*Config, error) {
	// Missing .env is fine; real environments set variables directly
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "stockwatch"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvList("KAFKA_BROKERS", nil),
			EventsTopic:  getEnv("KAFKA_EVENTS_TOPIC", "watch-agent-events"),
			CommandTopic: getEnv("KAFKA_COMMAND_TOPIC", ""),
			GroupID:      getEnv("KAFKA_GROUP_ID", "stock-watch-agent"),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			BaseURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			AllowedChatIDs: getEnvInt64List("TELEGRAM_ALLOWED_CHAT_IDS"),
			PollTimeout:    getEnvDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		},
		Polygon: PolygonConfig{
			APIKey:  getEnv("POLYGON_API_KEY", ""),
			Timeout: getEnvDuration("POLYGON_TIMEOUT", 10*time.Second),
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout: getEnvDuration("GEMINI_TIMEOUT", 90*time.Second),
		},
		Monitor: MonitorConfig{
			CheckIntervalMinutes:        getEnvInt("CHECK_INTERVAL_MINUTES", 15),
			PriceChangeThresholdPercent: getEnvFloat("PRICE_CHANGE_THRESHOLD_PERCENT", 0.5),
			NotifyAllNews:               getEnvBool("NOTIFY_ALL_NEWS", true),
			Resolution:                  getEnvDuration("SCHEDULER_RESOLUTION", time.Minute),
			MaxConcurrentFetches:        getEnvInt("MAX_CONCURRENT_FETCHES", 4),
			CycleTimeout:                getEnvDuration("CYCLE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout:             getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			DisambiguationTTL:           getEnvDuration("DISAMBIGUATION_TTL", 2*time.Minute),
			StoreBackend:                getEnv("STORE_BACKEND", "postgres"),
			SeedFile:                    getEnv("WATCHLIST_SEED_FILE", ""),
			SeedChatID:                  int64(getEnvInt("SEED_CHAT_ID", 0)),
		},
		Dedup: DedupConfig{
			Backend:       getEnv("DEDUP_BACKEND", "postgres"),
			Horizon:       getEnvDuration("DEDUP_HORIZON", 24*time.Hour),
			SweepInterval: getEnvDuration("DEDUP_SWEEP_INTERVAL", time.Hour),
			PriceWindow:   getEnvDuration("PRICE_DEDUP_WINDOW", time.Hour),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "console")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section against its constraints
func (c *Config) Validate() error {
	v := validator.New()
	sections := []interface{}{
		&c.Server, &c.Redis, &c.Telegram, &c.Polygon, &c.Gemini,
		&c.Monitor, &c.Dedup, &c.Logging,
	}
	for _, s := range sections {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	if c.Monitor.StoreBackend == "memory" && c.Dedup.Backend == "postgres" {
		return fmt.Errorf("invalid configuration: DEDUP_BACKEND=postgres requires STORE_BACKEND=postgres")
	}
	return nil
}

// Settings returns the process-wide default monitoring settings
func (m *MonitorConfig) Settings() models.Settings {
	return models.Settings{
		CheckIntervalMinutes:        m.CheckIntervalMinutes,
		PriceChangeThresholdPercent: decimal.NewFromFloat(m.PriceChangeThresholdPercent),
		NotifyAllNews:               m.NotifyAllNews,
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt64List(key string) []int64 {
	var out []int64
	for _, part := range getEnvList(key, nil) {
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}
