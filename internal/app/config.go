package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/grocery-oms/internal/pricing"
	"github.com/vladislavdragonenkov/grocery-oms/internal/service/inventory"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "GROCERY"

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
// Переменные окружения: GROCERY_<envconfig tag>.
type Config struct {
	GRPCAddr    string `envconfig:"GRPC_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE"`
	SeedDemoData        bool   `envconfig:"SEED_DEMO_DATA"`

	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaClientID   string   `envconfig:"KAFKA_CLIENT_ID"`
	KafkaOrderTopic string   `envconfig:"KAFKA_ORDER_TOPIC"`
	KafkaDLQTopic   string   `envconfig:"KAFKA_DLQ_TOPIC"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`

	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`

	// Денежные параметры хранятся строками и разбираются как decimal.
	DeliveryThreshold string `envconfig:"DELIVERY_THRESHOLD"`
	DeliveryCharge    string `envconfig:"DELIVERY_CHARGE"`
	TaxRate           string `envconfig:"TAX_RATE"`

	ReservationMode              string `envconfig:"RESERVATION_MODE"`
	RestoreAvailabilityOnRelease bool   `envconfig:"RESTORE_AVAILABILITY_ON_RELEASE"`

	SettlementDelay       time.Duration `envconfig:"SETTLEMENT_DELAY"`
	SettlementFailureRate float64       `envconfig:"SETTLEMENT_FAILURE_RATE"`
	BreakerMaxFailures    int           `envconfig:"BREAKER_MAX_FAILURES"`
	BreakerResetTimeout   time.Duration `envconfig:"BREAKER_RESET_TIMEOUT"`

	NotifyQueueSize int `envconfig:"NOTIFY_QUEUE_SIZE"`
	NotifyWorkers   int `envconfig:"NOTIFY_WORKERS"`

	RateLimitRPS       float64 `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST"`
	RateLimitStrictRPS float64 `envconfig:"RATE_LIMIT_STRICT_RPS"`

	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogFormat string `envconfig:"LOG_FORMAT"`
}

// DefaultConfig возвращает значения по умолчанию; переменные окружения поверх них.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedDemoData:        true,

		KafkaClientID:   "grocery-order-service",
		KafkaOrderTopic: "grocery.order.events",
		KafkaDLQTopic:   "grocery.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		DeliveryThreshold: "500",
		DeliveryCharge:    "40",
		TaxRate:           "0.05",

		ReservationMode:              string(inventory.ModeAtomic),
		RestoreAvailabilityOnRelease: true,

		SettlementDelay:       2 * time.Second,
		SettlementFailureRate: 0.10,
		BreakerMaxFailures:    5,
		BreakerResetTimeout:   30 * time.Second,

		NotifyQueueSize: 256,
		NotifyWorkers:   4,

		RateLimitRPS:       10,
		RateLimitBurst:     20,
		RateLimitStrictRPS: 2,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig читает необязательный .env файл, затем переменные GROCERY_*.
// Пустой envFile означает ".env" в рабочем каталоге.
func LoadConfig(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires GROCERY_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if _, err := c.Pricing(); err != nil {
		errs = append(errs, err)
	}

	switch inventory.Mode(c.ReservationMode) {
	case inventory.ModeAtomic, inventory.ModePartial:
	default:
		errs = append(errs, fmt.Errorf("unsupported reservation mode %q", c.ReservationMode))
	}

	if c.SettlementFailureRate < 0 || c.SettlementFailureRate > 1 {
		errs = append(errs, fmt.Errorf("settlement failure rate %v is outside [0,1]", c.SettlementFailureRate))
	}

	return errors.Join(errs...)
}

// Pricing собирает параметры ценообразования из строковых полей.
func (c Config) Pricing() (pricing.Config, error) {
	threshold, err := parseDecimal("delivery threshold", c.DeliveryThreshold)
	if err != nil {
		return pricing.Config{}, err
	}
	charge, err := parseDecimal("delivery charge", c.DeliveryCharge)
	if err != nil {
		return pricing.Config{}, err
	}
	rate, err := parseDecimal("tax rate", c.TaxRate)
	if err != nil {
		return pricing.Config{}, err
	}
	return pricing.Config{DeliveryThreshold: threshold, DeliveryCharge: charge, TaxRate: rate}, nil
}

func parseDecimal(name, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s %q: must not be negative", name, raw)
	}
	return value, nil
}
