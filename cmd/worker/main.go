package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/safariworks/tourbooking/cache/redis"
	"github.com/safariworks/tourbooking/config"
	"github.com/safariworks/tourbooking/ledger"
	"github.com/safariworks/tourbooking/repository/postgres"
	httpservice "github.com/safariworks/tourbooking/service/http"
	"github.com/safariworks/tourbooking/worker"
)

func main() {
	fmt.Println("Starting Booking Engine Worker")

	// Load configuration (fallback to env variables if config file not found)
	cfg, err := config.Initialise("config.yaml", false)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize repository
	repo, err := postgres.NewBookingRepository(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize repository:", err)
	}

	// Initialize cache
	cacheRepo, err := redis.NewRedisCacheRepository(cfg.Redis.GetRedisURL(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to initialize cache:", err)
	}

	// Initialize collaborator clients
	tourCatalog := httpservice.NewHTTPTourCatalog(&cfg.TourCatalog, cfg.JWTSecret)
	identity := httpservice.NewHTTPIdentityService(&cfg.Identity, cfg.JWTSecret)

	// Initialize Kafka writer for the notification dispatcher topic
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.NotificationTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Outbox relay and completion sweeper
	relay := worker.NewOutboxRelay(repo, kafkaWriter,
		cfg.Worker.OutboxBatchSize,
		time.Duration(cfg.Worker.PollIntervalSecs)*time.Second)

	bookings := ledger.NewBookingLedger(repo, tourCatalog, identity, cacheRepo)
	sweeper := worker.NewCompletionSweeper(bookings,
		time.Duration(cfg.Worker.SweepIntervalMin)*time.Minute)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("Received shutdown signal, stopping worker...")
		cancel()
	}()

	go func() {
		if err := sweeper.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Sweeper error: %v", err)
		}
	}()

	fmt.Println("Outbox relay worker started")
	if err := relay.Start(ctx); err != nil && err != context.Canceled {
		log.Fatal("Worker error:", err)
	}

	fmt.Println("Worker stopped gracefully")
}
