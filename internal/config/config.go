package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Collections struct {
	Messages      string
	Notifications string
	Applications  string
	Leases        string
	Payments      string
	Users         string
}

type Config struct {
	ServerPort     string
	FunctionsPort  string
	// StoreDriver is "postgres" or "memory".
	StoreDriver    string
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	RedisURL       string
	JWTSecret      string
	LogLevel       string
	// AllowedOrigins restricts websocket origins. Empty allows any.
	AllowedOrigins []string

	// Empty brokers send async executions over HTTP instead of Kafka.
	KafkaBrokers     []string
	ExecutionsTopic  string
	ExecutionsGroup  string
	FunctionsURL     string
	FunctionsAPIKey  string
	FunctionsKeyHash string
	EnablePayments   bool
	ReminderInterval time.Duration
	OverdueInterval  time.Duration

	Collections Collections
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		FunctionsPort:    getEnv("FUNCTIONS_PORT", "8081"),
		StoreDriver:      getEnv("STORE_DRIVER", "postgres"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "rentals"),
		DBPassword:       getEnv("DB_PASSWORD", "rentals_dev_password"),
		DBName:           getEnv("DB_NAME", "rentals"),
		RedisURL:         getEnv("REDIS_URL", ""),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change-me"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "")),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		ExecutionsTopic:  getEnv("FUNCTIONS_EXECUTIONS_TOPIC", "function.executions"),
		ExecutionsGroup:  getEnv("FUNCTIONS_CONSUMER_GROUP", "rentals-functions"),
		FunctionsURL:     getEnv("FUNCTIONS_ENDPOINT", ""),
		FunctionsAPIKey:  getEnv("FUNCTIONS_API_KEY", ""),
		FunctionsKeyHash: getEnv("FUNCTIONS_API_KEY_HASH", ""),
		Collections: Collections{
			Messages:      getEnv("COLLECTION_MESSAGES", "messages"),
			Notifications: getEnv("COLLECTION_NOTIFICATIONS", "notifications"),
			Applications:  getEnv("COLLECTION_APPLICATIONS", "applications"),
			Leases:        getEnv("COLLECTION_LEASES", "leases"),
			Payments:      getEnv("COLLECTION_PAYMENTS", "payments"),
			Users:         getEnv("COLLECTION_USERS", "users"),
		},
	}

	if cfg.StoreDriver != "postgres" && cfg.StoreDriver != "memory" {
		return nil, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.StoreDriver)
	}

	var err error
	if cfg.EnablePayments, err = getBool("ENABLE_PAYMENTS", false); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval, err = getDuration("LEASE_REMINDER_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OverdueInterval, err = getDuration("RENT_OVERDUE_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabaseURL is the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
