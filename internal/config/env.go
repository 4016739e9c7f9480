package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr  string
	GinMode  string
	LogLevel string

	// DBDSN selects the MySQL store. Empty means the in-memory store.
	DBDSN              string
	StoreRetryAttempts int

	JWTSecret          string
	CORSAllowedOrigins []string

	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration

	RedisAddr string
	CacheTTL  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	RefundPollInterval time.Duration
}

// LoadEnv reads configuration from the environment, loading .env first when present.
func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		AppAddr:  getEnv("APP_ADDR", ":8080"),
		GinMode:  getEnv("GIN_MODE", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDSN:              getEnv("DB_DSN", ""),
		StoreRetryAttempts: getEnvAsInt("STORE_RETRY_ATTEMPTS", 3),

		JWTSecret: getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:        getEnv("GATEWAY_API_KEY", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		GatewayTimeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		CacheTTL:  getEnvAsDuration("CACHE_TTL", 5*time.Minute),

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "booking.events"),

		RefundPollInterval: getEnvAsDuration("REFUND_POLL_INTERVAL", 5*time.Minute),
	}
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getEnvAsInt(key string, def int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
