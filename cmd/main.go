/**
 * @description
 * This is the main entry point for the cash-transfer-service. It is responsible for
 * initializing all components of the service, including configuration, the ledger
 * store, the daily usage cache, the event publisher, the transfer engine, the usage
 * reconciler and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Loads a local .env file for development.
 * - github.com/redis/go-redis/v9: Daily usage cache.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq, pkg/kafka: Event publishers.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/cash-transfer-service/internal/api"
	"github.com/transfa/cash-transfer-service/internal/app"
	"github.com/transfa/cash-transfer-service/internal/config"
	"github.com/transfa/cash-transfer-service/internal/store"
	"github.com/transfa/cash-transfer-service/internal/store/memory"
	kafkaproducer "github.com/transfa/cash-transfer-service/pkg/kafka"
	rmrabbit "github.com/transfa/cash-transfer-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting cash-transfer-service\" port=%s", cfg.ServerPort)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	repository, closeRepository := openRepository(cfg)
	defer closeRepository()

	var redisClient *redis.Client
	if cfg.RedisURL == "" {
		log.Println("level=info component=bootstrap msg=\"redis url not set; daily usage cache disabled\" env=REDIS_URL")
	} else {
		redisClient = connectRedis(cfg.RedisURL)
		if redisClient != nil {
			defer redisClient.Close()
		}
	}

	producer := openEventProducer(cfg)
	defer producer.Close()

	policy := transferPolicy(cfg)
	limits := app.NewLimitTracker(repository, app.DailyLimits{
		MaxAmount:    policy.MaxDailyAmount,
		MaxTransfers: policy.MaxDailyTransfers,
	})
	if redisClient != nil {
		limits.SetUsageCache(app.NewRedisUsageCache(redisClient, cfg.RedisUsagePrefix))
	}

	var publisher app.EventPublisher = producer
	if cfg.EventBroker == config.EventBrokerNone {
		publisher = nil
	}
	engine := app.NewEngine(repository, app.NewThresholdFeePolicy(policy), limits, publisher, policy)
	engine.SetEventTopic(cfg.EventExchange)

	// The reconciler only repairs cache drift, so it runs only when a cache is configured.
	var reconciler *app.Reconciler
	if redisClient != nil && cfg.UsageReconcileSchedule != "" {
		reconciler = app.NewReconciler(repository, repository, limits, logger, cfg.UsageReconcileSchedule)
		if err := reconciler.Start(); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"usage reconciler not started\" schedule=%q err=%v", cfg.UsageReconcileSchedule, err)
			reconciler = nil
		}
	}

	// Initialize the API handlers.
	transferHandlers := api.NewTransferHandlers(engine)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.TransferRoutes(transferHandlers, cfg.CORSAllowedOrigins))

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	if reconciler != nil {
		select {
		case <-reconciler.Stop().Done():
		case <-ctx.Done():
			log.Println("level=warn component=bootstrap msg=\"usage reconciler did not stop in time\"")
		}
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// openRepository connects to Postgres, or falls back to the in-memory store when
// DATABASE_URL is empty.
func openRepository(cfg config.Config) (store.Repository, func()) {
	if cfg.DatabaseURL == "" {
		log.Println("level=warn component=bootstrap msg=\"DATABASE_URL not set; using in-memory ledger\"")
		memStore := memory.New()
		if cfg.SeedDemoAccounts {
			if err := seedDemoAccounts(memStore); err != nil {
				log.Fatalf("level=fatal component=bootstrap msg=\"demo seed failed\" err=%v", err)
			}
		}
		return memStore, func() {}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")
	return store.NewPostgresRepository(dbpool), dbpool.Close
}

func connectRedis(redisURL string) *redis.Client {
	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; daily usage cache disabled\" err=%v", err)
		return nil
	}
	client := redis.NewClient(redisOptions)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; daily usage cache disabled\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}

// openEventProducer returns the configured broker producer. The Kafka producer
// satisfies the same Publisher contract as the RabbitMQ one.
func openEventProducer(cfg config.Config) rmrabbit.Publisher {
	switch cfg.EventBroker {
	case config.EventBrokerRabbitMQ:
		producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
			return &rmrabbit.EventProducerFallback{}
		}
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		return producer
	case config.EventBrokerKafka:
		producer, err := kafkaproducer.NewEventProducer(cfg.KafkaBrokers, cfg.EventExchange)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"kafka producer unavailable; using fallback\" err=%v", err)
			return &rmrabbit.EventProducerFallback{}
		}
		log.Printf("level=info component=bootstrap msg=\"kafka producer configured\" brokers=%v topic=%s", cfg.KafkaBrokers, cfg.EventExchange)
		return producer
	default:
		log.Println("level=info component=bootstrap msg=\"event publishing disabled\"")
		return &rmrabbit.EventProducerFallback{}
	}
}

func transferPolicy(cfg config.Config) app.TransferPolicy {
	return app.TransferPolicy{
		MinAmount:         cfg.TransferMinAmount,
		MaxAmount:         cfg.TransferMaxAmount,
		FlatFee:           cfg.TransferFlatFee,
		FreeThreshold:     cfg.TransferFreeThreshold,
		MaxDailyAmount:    cfg.DailyMaxAmount,
		MaxDailyTransfers: cfg.DailyMaxTransfers,
		Timeout:           cfg.TransferTimeout(),
	}
}
