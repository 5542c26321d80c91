package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var configEnvKeys = []string{
	"PORT", "SERVER_PORT", "EVENT_BROKER", "EVENT_EXCHANGE", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"CORS_ALLOWED_ORIGINS", "DAILY_MAX_TRANSFERS", "TRANSFER_TIMEOUT_SECONDS",
	"TRANSFER_MIN_AMOUNT", "TRANSFER_MAX_AMOUNT", "TRANSFER_FLAT_FEE", "TRANSFER_FREE_THRESHOLD", "DAILY_MAX_AMOUNT",
	"REDIS_URL", "CASH_TRANSFER_REDIS_URL", "REDIS_USAGE_PREFIX",
}

func resetConfigEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, key := range configEnvKeys {
		unsetEnvWithCleanup(t, key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetConfigEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.EventBroker != EventBrokerRabbitMQ {
		t.Fatalf("expected default broker rabbitmq, got %q", cfg.EventBroker)
	}
	if cfg.DailyMaxTransfers != 20 {
		t.Fatalf("expected default daily cap 20, got %d", cfg.DailyMaxTransfers)
	}
	if cfg.TransferTimeout() != 10*time.Second {
		t.Fatalf("expected default timeout 10s, got %s", cfg.TransferTimeout())
	}

	moneyChecks := map[string]struct {
		got  decimal.Decimal
		want string
	}{
		"min":       {cfg.TransferMinAmount, "1.00"},
		"max":       {cfg.TransferMaxAmount, "50000.00"},
		"fee":       {cfg.TransferFlatFee, "5.00"},
		"threshold": {cfg.TransferFreeThreshold, "500.00"},
		"daily":     {cfg.DailyMaxAmount, "100000.00"},
	}
	for name, check := range moneyChecks {
		if !check.got.Equal(decimal.RequireFromString(check.want)) {
			t.Fatalf("expected default %s %s, got %s", name, check.want, check.got)
		}
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to take precedence, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_InvalidMoneyFallsBackToDefault(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "TRANSFER_FLAT_FEE", "five pesos")
	setEnvWithCleanup(t, "TRANSFER_FREE_THRESHOLD", "-1")
	setEnvWithCleanup(t, "DAILY_MAX_AMOUNT", "250000.5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.TransferFlatFee.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("expected unparsable fee to fall back to 5.00, got %s", cfg.TransferFlatFee)
	}
	if !cfg.TransferFreeThreshold.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("expected negative threshold to fall back to 500.00, got %s", cfg.TransferFreeThreshold)
	}
	if !cfg.DailyMaxAmount.Equal(decimal.RequireFromString("250000.50")) {
		t.Fatalf("expected configured daily cap 250000.50, got %s", cfg.DailyMaxAmount)
	}
}

func TestLoadConfig_MaxBelowMinRestoresDefaults(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "TRANSFER_MIN_AMOUNT", "100")
	setEnvWithCleanup(t, "TRANSFER_MAX_AMOUNT", "10")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.TransferMinAmount.Equal(decimal.RequireFromString("1")) || !cfg.TransferMaxAmount.Equal(decimal.RequireFromString("50000")) {
		t.Fatalf("expected default bounds, got min=%s max=%s", cfg.TransferMinAmount, cfg.TransferMaxAmount)
	}
}

func TestLoadConfig_NonPositiveDailyCapIsCoerced(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "DAILY_MAX_TRANSFERS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DailyMaxTransfers != 20 {
		t.Fatalf("expected daily cap coerced to 20, got %d", cfg.DailyMaxTransfers)
	}
}

func TestLoadConfig_KafkaSettings(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "EVENT_BROKER", " Kafka ")
	setEnvWithCleanup(t, "KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	setEnvWithCleanup(t, "KAFKA_TOPIC", "wallet.transfers")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EventBroker != EventBrokerKafka {
		t.Fatalf("expected kafka broker, got %q", cfg.EventBroker)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "kafka-1:9092" || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected kafka brokers %v", cfg.KafkaBrokers)
	}
	if cfg.EventExchange != "wallet.transfers" {
		t.Fatalf("expected KAFKA_TOPIC to set the event topic, got %q", cfg.EventExchange)
	}
}

func TestLoadConfig_UnknownBrokerDisablesEvents(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "EVENT_BROKER", "carrier-pigeon")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EventBroker != EventBrokerNone {
		t.Fatalf("expected events disabled, got %q", cfg.EventBroker)
	}
}

func TestLoadConfig_RedisURLAlias(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "CASH_TRANSFER_REDIS_URL", "redis://cache:6379/0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RedisURL != "redis://cache:6379/0" {
		t.Fatalf("expected RedisURL from alias env var, got %q", cfg.RedisURL)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
