package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки приложения
type Config struct {
	Telegram  TelegramConfig
	Exchange  ExchangeConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Policy    PolicyConfig
	API       APIConfig
	LogLevel  string
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
	Lang     string
}

// Enabled оповещения включены
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

type ExchangeConfig struct {
	MEXCBaseURL    string
	RequestTimeout time.Duration
	MinSpacing     time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

type DatabaseConfig struct {
	Driver          string // postgres или memory
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type SchedulerConfig struct {
	Tick             time.Duration
	OptimisticCancel bool
}

type PolicyConfig struct {
	Path    string
	Profile string
}

type APIConfig struct {
	Port  int
	Token string
}

// Load загружает конфигурацию из .env файла
func Load() (*Config, error) {
	// Загружаем .env файл (если есть)
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	return FromEnv()
}

// FromEnv читает конфигурацию только из переменных окружения
func FromEnv() (*Config, error) {
	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	requestTimeout, err := time.ParseDuration(getEnv("EXCHANGE_REQUEST_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_REQUEST_TIMEOUT: %w", err)
	}

	minSpacing, err := time.ParseDuration(getEnv("EXCHANGE_MIN_SPACING", "50ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_MIN_SPACING: %w", err)
	}

	retryAttempts, err := strconv.Atoi(getEnv("EXCHANGE_RETRY_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_RETRY_ATTEMPTS: %w", err)
	}

	retryDelay, err := time.ParseDuration(getEnv("EXCHANGE_RETRY_DELAY", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXCHANGE_RETRY_DELAY: %w", err)
	}

	tick, err := time.ParseDuration(getEnv("SCHEDULER_TICK", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TICK: %w", err)
	}

	optimisticCancel, err := strconv.ParseBool(getEnv("SCHEDULER_OPTIMISTIC_CANCEL", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_OPTIMISTIC_CANCEL: %w", err)
	}

	apiPort, err := strconv.Atoi(getEnv("API_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_PORT: %w", err)
	}

	config := &Config{
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   chatID,
			Lang:     getEnv("TELEGRAM_LANG", "en"),
		},
		Exchange: ExchangeConfig{
			MEXCBaseURL:    getEnv("MEXC_BASE_URL", "https://api.mexc.com"),
			RequestTimeout: requestTimeout,
			MinSpacing:     minSpacing,
			RetryAttempts:  retryAttempts,
			RetryDelay:     retryDelay,
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "volume_bot"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		Scheduler: SchedulerConfig{
			Tick:             tick,
			OptimisticCancel: optimisticCancel,
		},
		Policy: PolicyConfig{
			Path:    getEnv("POLICY_PATH", ""),
			Profile: getEnv("POLICY_PROFILE", "default"),
		},
		API: APIConfig{
			Port:  apiPort,
			Token: getEnv("API_TOKEN", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.API.Token == "" {
		return fmt.Errorf("API_TOKEN is required")
	}
	if c.Exchange.RetryAttempts < 1 {
		return fmt.Errorf("EXCHANGE_RETRY_ATTEMPTS must be >= 1")
	}
	if c.Exchange.MinSpacing < 0 {
		return fmt.Errorf("EXCHANGE_MIN_SPACING must be >= 0")
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("SCHEDULER_TICK must be positive")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
