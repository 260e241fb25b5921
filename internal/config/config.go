package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Messaging gateway (WhatsApp HTTP gateway)
	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayWebhookSecret string
	GatewayAttemptCap    int
	GatewayDeadline      time.Duration
	GatewayCallTimeout   time.Duration

	// Scheduling collaborator (availability + booking service)
	SchedulerBaseURL string
	SchedulerAPIKey  string

	// Conversation state
	ConversationsTable string
	ConversationStale  time.Duration
	DefaultTimezone    string
	DefaultCountryCode string

	// AWS (DynamoDB conversation store, SES email fallback)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Redis (processed-event dedup)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret string

	// Email fallback for booking confirmations
	SESFromEmail      string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		CORSOrigins:    splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:        getEnv("GATEWAY_API_KEY", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		GatewayAttemptCap:    getEnvAsInt("GATEWAY_ATTEMPT_CAP", 4),
		GatewayDeadline:      getEnvAsDuration("GATEWAY_DEADLINE", 35*time.Second),
		GatewayCallTimeout:   getEnvAsDuration("GATEWAY_CALL_TIMEOUT", 20*time.Second),

		SchedulerBaseURL: getEnv("SCHEDULER_BASE_URL", ""),
		SchedulerAPIKey:  getEnv("SCHEDULER_API_KEY", ""),

		ConversationsTable: getEnv("CONVERSATIONS_TABLE", "conversations"),
		ConversationStale:  getEnvAsDuration("CONVERSATION_STALE_AFTER", 2*time.Hour),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "America/Sao_Paulo"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "55"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "AgendaBot"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
