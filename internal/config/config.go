package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the engine needs. It is threaded explicitly
// into routes and services; nothing reads a package-level default.
type Config struct {
	Port          string
	StoreURL      string
	Space         string
	SessionBuffer time.Duration
	MeetBaseURL   string
	AppEnv        string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	bufferSeconds, err := getEnvInt("SESSION_BUFFER_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	if bufferSeconds < 0 {
		return nil, fmt.Errorf("SESSION_BUFFER_SECONDS must not be negative")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		StoreURL:      getEnv("STORE_URL", ""),
		Space:         getEnv("STORE_SPACE", "p2pmentor"),
		SessionBuffer: time.Duration(bufferSeconds) * time.Second,
		MeetBaseURL:   getEnv("MEET_BASE_URL", "https://meet.p2pmentor.app"),
		AppEnv:        normalizeEnv(getEnv("APP_ENV", "production")),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %v", key, err)
	}
	return parsed, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
