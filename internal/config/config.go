package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	// Shared lock store. Both optional; when neither is configured the lock
	// manager degrades to in-process locking.
	KVRestURL   string
	KVRestToken string
	RedisURL    string

	// External job executor event API. Optional; when unset events are
	// delivered in-process.
	ExecutorEventURL string
	ExecutorEventKey string

	// Enrichment provider (embeddings + summaries).
	OpenAIAPIKey string

	// Outbound send.
	GoogleClientID     string
	GoogleClientSecret string
	SendAPIURL         string
	SendAPIKey         string
	TrackingBaseURL    string

	PollInterval    int // seconds
	MaxRetries      int
	ShutdownTimeout int // seconds
	LockWaitMax     int // seconds
	LockPoll        int // seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	kvRestURL := os.Getenv("KV_REST_API_URL")
	kvRestToken := os.Getenv("KV_REST_API_TOKEN")
	redisURL := os.Getenv("REDIS_URL")
	if kvRestURL == "" && redisURL == "" {
		fmt.Println("Warning: no KV_REST_API_URL or REDIS_URL set, falling back to in-process locks")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		fmt.Println("Warning: OPENAI_API_KEY not set, email analysis will not work")
	}

	googleClientID := os.Getenv("GOOGLE_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if googleClientID == "" || googleClientSecret == "" {
		fmt.Println("Warning: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, Gmail sends will not work")
	}

	return &Config{
		DatabaseURL:        dbURL,
		KVRestURL:          kvRestURL,
		KVRestToken:        kvRestToken,
		RedisURL:           redisURL,
		ExecutorEventURL:   os.Getenv("EXECUTOR_EVENT_URL"),
		ExecutorEventKey:   os.Getenv("EXECUTOR_EVENT_KEY"),
		OpenAIAPIKey:       openAIKey,
		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		SendAPIURL:         os.Getenv("SEND_API_URL"),
		SendAPIKey:         os.Getenv("SEND_API_KEY"),
		TrackingBaseURL:    os.Getenv("TRACKING_BASE_URL"),
		PollInterval:       10,   // poll every 10 seconds
		MaxRetries:         3,    // local delivery retry cap
		ShutdownTimeout:    30,   // seconds
		LockWaitMax:        1800, // 30 minutes, hard ceiling for WithLock
		LockPoll:           5,    // seconds between acquire attempts
	}, nil
}
