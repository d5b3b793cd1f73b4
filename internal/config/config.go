package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr      string
	AdminAddr       string
	Workers         int
	IdleTimeout     time.Duration
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodyBytes    int
	LogLevel        string

	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RabbitURL      string
	IdempotencyTTL time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		AdminAddr:       getenv("ADMIN_ADDR", ":9090"),
		Workers:         getInt("WORKERS", 4),
		IdleTimeout:     getDuration("IDLE_TIMEOUT", 60*time.Second),
		ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		MaxHeaderBytes:  getInt("MAX_HEADER_BYTES", 64<<10),
		MaxBodyBytes:    getInt("MAX_BODY_BYTES", 1<<20),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         getenv("MONGO_DB", "cinema"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		IdempotencyTTL:  getDuration("IDEMPOTENCY_TTL", time.Hour),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getInt falls back to def when the variable is unset or not a positive integer.
func getInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return def
	}
	return d
}
