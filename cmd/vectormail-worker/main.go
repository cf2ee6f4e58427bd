package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parbhatkapila4/vectormail-worker/internal/config"
	"github.com/parbhatkapila4/vectormail-worker/internal/database"
	"github.com/parbhatkapila4/vectormail-worker/internal/dispatch"
	"github.com/parbhatkapila4/vectormail-worker/internal/enrichment"
	"github.com/parbhatkapila4/vectormail-worker/internal/jobs"
	"github.com/parbhatkapila4/vectormail-worker/internal/lock"
	"github.com/parbhatkapila4/vectormail-worker/internal/mailer"
	"github.com/parbhatkapila4/vectormail-worker/internal/repository"
	"github.com/parbhatkapila4/vectormail-worker/internal/service"
	"github.com/parbhatkapila4/vectormail-worker/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(db)

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(db)
	emailRepo := repository.NewEmailRepository(db)
	sendRepo := repository.NewScheduledSendRepository(db)
	failedJobRepo := repository.NewFailedJobRepository(db)
	trackingRepo := repository.NewTrackingRepository(db)

	// Lock manager: backend chosen once, here, from configuration
	locks := lock.NewManager(lock.Config{
		RestURL:   cfg.KVRestURL,
		RestToken: cfg.KVRestToken,
		RedisURL:  cfg.RedisURL,
		WaitMax:   time.Duration(cfg.LockWaitMax) * time.Second,
		Poll:      time.Duration(cfg.LockPoll) * time.Second,
	})

	// Initialize providers and send strategies
	enricher := enrichment.NewClient(cfg.OpenAIAPIKey)
	gmailStrategy := mailer.NewGmailStrategy(cfg.GoogleClientID, cfg.GoogleClientSecret, accountRepo)
	restStrategy := mailer.NewRestStrategy(cfg.SendAPIURL, cfg.SendAPIKey)

	// Initialize processors
	analysisProcessor := service.NewEmailAnalysisProcessor(emailRepo, enricher)
	sendProcessor := service.NewScheduledSendProcessor(
		sendRepo, accountRepo, gmailStrategy, restStrategy, trackingRepo, cfg.TrackingBaseURL)

	// Register event handlers and build the dispatcher
	registry := dispatch.NewRegistry()
	handlers := jobs.NewHandlers(analysisProcessor, sendProcessor, failedJobRepo, locks)
	handlers.Register(registry)

	dispatcher := dispatch.NewDispatcher(cfg.ExecutorEventURL, cfg.ExecutorEventKey, registry, cfg.MaxRetries)

	// Initialize watcher
	w := watcher.New(cfg, sendRepo, accountRepo, dispatcher)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				log.Printf("Watcher error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
