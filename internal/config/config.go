/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables (and an optional
 * .env file), providing a centralized and straightforward way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 * - github.com/shopspring/decimal: Money-valued settings are parsed as fixed-point decimals.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	EventBrokerRabbitMQ = "rabbitmq"
	EventBrokerKafka    = "kafka"
	EventBrokerNone     = "none"
)

// Config holds all the configuration variables for the cash-transfer-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string   `mapstructure:"SERVER_PORT"`
	DatabaseURL            string   `mapstructure:"DATABASE_URL"`
	RedisURL               string   `mapstructure:"REDIS_URL"`
	RedisUsagePrefix       string   `mapstructure:"REDIS_USAGE_PREFIX"`
	EventBroker            string   `mapstructure:"EVENT_BROKER"`
	RabbitMQURL            string   `mapstructure:"RABBITMQ_URL"`
	EventExchange          string   `mapstructure:"EVENT_EXCHANGE"`
	KafkaBrokers           []string `mapstructure:"-"`
	CORSAllowedOrigins     []string `mapstructure:"-"`
	DailyMaxTransfers      int      `mapstructure:"DAILY_MAX_TRANSFERS"`
	TransferTimeoutSeconds int      `mapstructure:"TRANSFER_TIMEOUT_SECONDS"`
	UsageReconcileSchedule string   `mapstructure:"USAGE_RECONCILE_SCHEDULE"`
	SeedDemoAccounts       bool     `mapstructure:"SEED_DEMO_ACCOUNTS"`

	TransferMinAmount     decimal.Decimal `mapstructure:"-"`
	TransferMaxAmount     decimal.Decimal `mapstructure:"-"`
	TransferFlatFee       decimal.Decimal `mapstructure:"-"`
	TransferFreeThreshold decimal.Decimal `mapstructure:"-"`
	DailyMaxAmount        decimal.Decimal `mapstructure:"-"`
}

// moneyDefaults lists the money-valued settings and their fallbacks.
var moneyDefaults = []struct {
	key      string
	fallback string
	target   func(*Config) *decimal.Decimal
}{
	{"TRANSFER_MIN_AMOUNT", "1.00", func(c *Config) *decimal.Decimal { return &c.TransferMinAmount }},
	{"TRANSFER_MAX_AMOUNT", "50000.00", func(c *Config) *decimal.Decimal { return &c.TransferMaxAmount }},
	{"TRANSFER_FLAT_FEE", "5.00", func(c *Config) *decimal.Decimal { return &c.TransferFlatFee }},
	{"TRANSFER_FREE_THRESHOLD", "500.00", func(c *Config) *decimal.Decimal { return &c.TransferFreeThreshold }},
	{"DAILY_MAX_AMOUNT", "100000.00", func(c *Config) *decimal.Decimal { return &c.DailyMaxAmount }},
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_USAGE_PREFIX", "transfa:daily_usage")
	viper.SetDefault("EVENT_BROKER", EventBrokerRabbitMQ)
	viper.SetDefault("EVENT_EXCHANGE", "wallet.events")
	viper.SetDefault("KAFKA_TOPIC", "")
	viper.SetDefault("DAILY_MAX_TRANSFERS", 20)
	viper.SetDefault("TRANSFER_TIMEOUT_SECONDS", 10)
	viper.SetDefault("USAGE_RECONCILE_SCHEDULE", "@every 15m")
	viper.SetDefault("SEED_DEMO_ACCOUNTS", true)
	for _, m := range moneyDefaults {
		viper.SetDefault(m.key, m.fallback)
	}

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CASH_TRANSFER_REDIS_URL")
	_ = viper.BindEnv("REDIS_USAGE_PREFIX")
	_ = viper.BindEnv("EVENT_BROKER")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("KAFKA_BROKERS")
	_ = viper.BindEnv("KAFKA_TOPIC")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("DAILY_MAX_TRANSFERS")
	_ = viper.BindEnv("TRANSFER_TIMEOUT_SECONDS")
	_ = viper.BindEnv("USAGE_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("SEED_DEMO_ACCOUNTS")
	for _, m := range moneyDefaults {
		_ = viper.BindEnv(m.key)
	}

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisUsagePrefix = strings.TrimSpace(config.RedisUsagePrefix)
	if config.RedisUsagePrefix == "" {
		config.RedisUsagePrefix = "transfa:daily_usage"
	}

	config.EventBroker = strings.ToLower(strings.TrimSpace(config.EventBroker))
	switch config.EventBroker {
	case EventBrokerRabbitMQ, EventBrokerKafka, EventBrokerNone:
	default:
		log.Printf("level=warn component=config msg=\"unknown EVENT_BROKER; events disabled\" value=%q", config.EventBroker)
		config.EventBroker = EventBrokerNone
	}
	// Kafka has no exchanges; KAFKA_TOPIC takes precedence over EVENT_EXCHANGE there.
	if topic := strings.TrimSpace(viper.GetString("KAFKA_TOPIC")); topic != "" && config.EventBroker == EventBrokerKafka {
		config.EventExchange = topic
	}

	config.KafkaBrokers = splitList(viper.GetString("KAFKA_BROKERS"))
	config.CORSAllowedOrigins = splitList(viper.GetString("CORS_ALLOWED_ORIGINS"))
	if len(config.CORSAllowedOrigins) == 0 {
		config.CORSAllowedOrigins = []string{"https://*", "http://*"}
	}

	for _, m := range moneyDefaults {
		*m.target(&config) = parseMoney(m.key, m.fallback)
	}
	if config.TransferMaxAmount.LessThan(config.TransferMinAmount) {
		log.Printf("level=warn component=config msg=\"transfer max below min; using defaults\" min=%s max=%s", config.TransferMinAmount, config.TransferMaxAmount)
		config.TransferMinAmount = decimal.RequireFromString("1.00")
		config.TransferMaxAmount = decimal.RequireFromString("50000.00")
	}

	if config.DailyMaxTransfers <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive daily transfer cap configured; using default\" value=%d", config.DailyMaxTransfers)
		config.DailyMaxTransfers = 20
	}
	if config.TransferTimeoutSeconds <= 0 {
		config.TransferTimeoutSeconds = 10
	}
	config.UsageReconcileSchedule = strings.TrimSpace(config.UsageReconcileSchedule)

	return
}

// TransferTimeout is the deadline for the atomic part of a transfer.
func (c Config) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutSeconds) * time.Second
}

// parseMoney reads a money setting, coercing unparsable or negative values to fallback.
func parseMoney(key, fallback string) decimal.Decimal {
	def := decimal.RequireFromString(fallback)
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return def
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid %s; using default\" value=%q err=%v", key, raw, err)
		return def
	}
	if value.IsNegative() {
		log.Printf("level=warn component=config msg=\"negative %s configured; using default\" value=%s", key, value)
		return def
	}
	return value.Round(2)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
