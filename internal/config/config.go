package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Database  DatabaseConfig
	App       AppConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Payroll   PayrollConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
	// AllowedOrigins feeds the CORS middleware
	AllowedOrigins []string
}

// RedisConfig holds the employment lock backend. An empty Addr selects the
// in-process locker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers         []string
	OutboxEnabled   bool
	OutboxBatchSize int
	PollInterval    time.Duration
}

// PayrollConfig carries the calculation parameters
type PayrollConfig struct {
	FTETolerance           decimal.Decimal
	AmountScale            int32
	TaxAnnualization       string
	ThirteenthMonthAccrual bool
	BatchWorkers           int
	TransitionWorkers      int
	LockTTL                time.Duration
	BatchRetention         time.Duration
}

type SchedulerConfig struct {
	Enabled      bool
	TickInterval time.Duration
	Location     string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || getEnv("APP_ENV", "development") == "production" {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
		slog.Debug("no .env file, using process environment")
	}

	config := &Config{}

	// Database configuration
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	maxConns, err := getEnvInt("DB_MAX_CONNS", 25)
	if err != nil {
		return nil, err
	}
	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, err
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "hrms_payroll"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(maxConns),
		MinConns: int32(minConns),
	}

	// Application configuration
	appPort, err := getEnvInt("APP_PORT", 8080)
	if err != nil {
		return nil, err
	}

	config.App = AppConfig{
		Port:           appPort,
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS"),
	}

	// Redis configuration
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	config.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
	}

	// Kafka configuration
	outboxBatch, err := getEnvInt("OUTBOX_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}

	config.Kafka = KafkaConfig{
		Brokers:         getEnvSlice("KAFKA_BROKERS"),
		OutboxEnabled:   getEnvBool("OUTBOX_ENABLED", true),
		OutboxBatchSize: outboxBatch,
		PollInterval:    pollInterval,
	}

	// Payroll configuration
	tolerance, err := decimal.NewFromString(getEnv("PAYROLL_FTE_TOLERANCE", "0.01"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_FTE_TOLERANCE: %w", err)
	}
	scale, err := getEnvInt("PAYROLL_AMOUNT_SCALE", 2)
	if err != nil {
		return nil, err
	}
	batchWorkers, err := getEnvInt("PAYROLL_BATCH_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	transitionWorkers, err := getEnvInt("PROBATION_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getEnvDuration("EMPLOYMENT_LOCK_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	batchRetention, err := getEnvDuration("PAYROLL_BATCH_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	config.Payroll = PayrollConfig{
		FTETolerance:           tolerance,
		AmountScale:            int32(scale),
		TaxAnnualization:       getEnv("PAYROLL_TAX_ANNUALIZATION", "monthly_x12"),
		ThirteenthMonthAccrual: getEnvBool("PAYROLL_THIRTEENTH_MONTH_ACCRUAL", false),
		BatchWorkers:           batchWorkers,
		TransitionWorkers:      transitionWorkers,
		LockTTL:                lockTTL,
		BatchRetention:         batchRetention,
	}

	// Scheduler configuration
	tick, err := getEnvDuration("SCHEDULER_TICK_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	config.Scheduler = SchedulerConfig{
		Enabled:      getEnvBool("SCHEDULER_ENABLED", true),
		TickInterval: tick,
		Location:     getEnv("SCHEDULER_TIMEZONE", "UTC"),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Kafka.OutboxEnabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when OUTBOX_ENABLED is set")
	}
	if !c.Payroll.FTETolerance.IsPositive() {
		return fmt.Errorf("PAYROLL_FTE_TOLERANCE must be positive")
	}
	if c.Payroll.AmountScale < 0 || c.Payroll.AmountScale > 6 {
		return fmt.Errorf("PAYROLL_AMOUNT_SCALE must be between 0 and 6")
	}
	if !validator.IsInSlice(c.Payroll.TaxAnnualization, []string{"monthly_x12", "year_to_date"}) {
		return fmt.Errorf("PAYROLL_TAX_ANNUALIZATION must be monthly_x12 or year_to_date, got %q", c.Payroll.TaxAnnualization)
	}
	if c.Payroll.BatchWorkers < 1 || c.Payroll.TransitionWorkers < 1 {
		return fmt.Errorf("worker counts must be at least 1")
	}
	if c.Payroll.LockTTL <= 0 {
		return fmt.Errorf("EMPLOYMENT_LOCK_TTL must be positive")
	}
	if c.Payroll.BatchRetention <= 0 {
		return fmt.Errorf("PAYROLL_BATCH_RETENTION must be positive")
	}
	if _, err := time.LoadLocation(c.Scheduler.Location); err != nil {
		return fmt.Errorf("invalid SCHEDULER_TIMEZONE: %w", err)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL onto slog
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
