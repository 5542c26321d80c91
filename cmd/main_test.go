package main

import (
	"context"
	"testing"

	"github.com/transfa/cash-transfer-service/internal/config"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store/memory"
	kafkaproducer "github.com/transfa/cash-transfer-service/pkg/kafka"
	rmrabbit "github.com/transfa/cash-transfer-service/pkg/rabbitmq"
)

func TestSeedDemoAccounts(t *testing.T) {
	s := memory.New()
	if err := seedDemoAccounts(s); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	for _, acct := range demoAccounts {
		found, err := s.Resolve(context.Background(), acct.mobile)
		if err != nil {
			t.Fatalf("resolve %s: %v", acct.mobile, err)
		}
		if found.ID != demoAccountID(acct.mobile) {
			t.Fatalf("expected stable id for %s, got %s", acct.mobile, found.ID)
		}
		if !domain.IsValidMobileNumber(acct.mobile) {
			t.Fatalf("demo mobile number %s is not in the accepted format", acct.mobile)
		}
	}

	if err := seedDemoAccounts(s); err == nil {
		t.Fatal("expected reseeding the same store to fail on duplicate numbers")
	}
}

func TestDemoAccountIDIsDeterministic(t *testing.T) {
	if demoAccountID("09171234567") != demoAccountID("09171234567") {
		t.Fatal("expected the same id for the same number")
	}
	if demoAccountID("09171234567") == demoAccountID("09181234567") {
		t.Fatal("expected different ids for different numbers")
	}
}

func TestOpenEventProducer_DisabledUsesFallback(t *testing.T) {
	producer := openEventProducer(config.Config{EventBroker: config.EventBrokerNone})
	if _, ok := producer.(*rmrabbit.EventProducerFallback); !ok {
		t.Fatalf("expected fallback producer, got %T", producer)
	}
}

func TestOpenEventProducer_KafkaWithoutBrokersUsesFallback(t *testing.T) {
	producer := openEventProducer(config.Config{EventBroker: config.EventBrokerKafka})
	if _, ok := producer.(*rmrabbit.EventProducerFallback); !ok {
		t.Fatalf("expected fallback producer, got %T", producer)
	}
}

func TestOpenEventProducer_KafkaWithBrokers(t *testing.T) {
	producer := openEventProducer(config.Config{
		EventBroker:   config.EventBrokerKafka,
		KafkaBrokers:  []string{"localhost:9092"},
		EventExchange: "wallet.events",
	})
	defer producer.Close()
	if _, ok := producer.(*kafkaproducer.EventProducer); !ok {
		t.Fatalf("expected kafka producer, got %T", producer)
	}
}

func TestTransferPolicyFromConfig(t *testing.T) {
	cfg := config.Config{DailyMaxTransfers: 7, TransferTimeoutSeconds: 3}
	policy := transferPolicy(cfg)
	if policy.MaxDailyTransfers != 7 {
		t.Fatalf("expected 7 daily transfers, got %d", policy.MaxDailyTransfers)
	}
	if policy.Timeout.Seconds() != 3 {
		t.Fatalf("expected 3s timeout, got %s", policy.Timeout)
	}
}
