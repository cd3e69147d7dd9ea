package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	APIKey             string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Generation backend
	BackendURL string // queue/history/view HTTP API of the generation service

	// Redis (collect-task work queue)
	RedisURL     string
	QueueEnabled bool // when false, collect tasks run as plain goroutines

	// Filesystem
	MediaDir      string // local media store root (image/video/audio/output)
	WorkDir       string // per-request assembly working directories
	StoryboardDir string // flat-file storyboard documents

	// Worker
	WorkerEnabled     bool
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		APIKey:             getEnv("API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		BackendURL:         getEnv("BACKEND_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		QueueEnabled:       getEnvBool("QUEUE_ENABLED", true),
		MediaDir:           getEnv("MEDIA_DIR", "data/media"),
		WorkDir:            getEnv("WORK_DIR", "data/work"),
		StoryboardDir:      getEnv("STORYBOARD_DIR", "data/storyboards"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
