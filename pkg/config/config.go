package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret   string
	JWTLifetime time.Duration

	// Seeded SUPER_USER; skipped when AdminEmail is empty.
	AdminUserName string
	AdminEmail    string
	AdminPassword string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// NotifyChannel is one of "smtp", "kafka" or "log".
	NotifyChannel    string
	NotifyMaxRetries int
	NotifyWorkers    int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	KafkaBrokers            []string
	KafkaTopicNotifications string
	KafkaClientID           string
	KafkaGroupID            string
	KafkaRetries            int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "postgres"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "program"),
		DBPassword: getEnv("DB_PASSWORD", "test"),
		DBName:     getEnv("DB_NAME", "library"),

		JWTSecret:   getEnv("JWT_SECRET", "change-me-in-production-at-least-32-chars"),
		JWTLifetime: time.Duration(getEnvAsInt("JWT_LIFETIME_MINUTES", 60)) * time.Minute,

		AdminUserName: getEnv("ADMIN_USERNAME", "librarian"),
		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 60)) * time.Second,

		NotifyChannel:    getEnv("NOTIFY_CHANNEL", "log"),
		NotifyMaxRetries: getEnvAsInt("NOTIFY_MAX_RETRIES", 5),
		NotifyWorkers:    getEnvAsInt("NOTIFY_WORKERS", 1),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "library@localhost"),

		KafkaBrokers:            getEnvAsList("KAFKA_BROKERS", "localhost:9093"),
		KafkaTopicNotifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "library.notifications"),
		KafkaClientID:           getEnv("KAFKA_CLIENT_ID", "library-service"),
		KafkaGroupID:            getEnv("KAFKA_GROUP_ID", "library-mailer"),
		KafkaRetries:            getEnvAsInt("KAFKA_RETRIES", 3),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvAsList(key, defaultValue string) []string {
	parts := strings.Split(getEnv(key, defaultValue), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
