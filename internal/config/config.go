package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string

	JWTSecret string

	// BaseURL is the public origin local actor URLs are derived from, without trailing slash.
	BaseURL string

	RedisURL string

	DeliveryWorkers     int
	DeliveryMaxAttempts int
	DeliveryTimeout     time.Duration

	ActorCacheSize int
	ActorCacheTTL  time.Duration

	// SeedActors are local actors created at startup on the in-memory store,
	// written "name" or "name:manual".
	SeedActors []string
}

// UseDatabase reports whether a Postgres connection is configured.
// Without one the server runs on the in-memory store.
func (c *Config) UseDatabase() bool {
	return c.DBHost != ""
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	baseURL := strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if baseURL == "" {
		baseURL = "http://localhost:" + serverPort
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  sslMode,

		ServerPort: serverPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		BaseURL: baseURL,

		RedisURL: os.Getenv("REDIS_URL"),

		DeliveryWorkers:     envInt("DELIVERY_WORKERS", 2),
		DeliveryMaxAttempts: envInt("DELIVERY_MAX_ATTEMPTS", 5),
		DeliveryTimeout:     time.Duration(envInt("DELIVERY_TIMEOUT_SECONDS", 10)) * time.Second,

		ActorCacheSize: envInt("ACTOR_CACHE_SIZE", 1024),
		ActorCacheTTL:  time.Duration(envInt("ACTOR_CACHE_TTL_SECONDS", 300)) * time.Second,

		SeedActors: envList("SEED_ACTORS"),
	}, nil
}

// envInt reads a positive integer, falling back when unset or invalid.
func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// envList splits a comma-separated value, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
