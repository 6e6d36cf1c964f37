package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Gemini
	GeminiAPIKey      string
	GeminiModelID     string
	GeminiTemperature float32

	// LINE Messaging API
	LineChannelAccessToken string
	LineChannelSecret      string
	LineAPIBaseURL         string
	LineReplyTimeout       time.Duration

	// Confidence gate
	ConfidenceGateEnabled bool
	ConfidenceThreshold   int

	// Session expiry policies
	SessionInactivityTTL   time.Duration
	SessionInactivitySweep time.Duration
	SessionRetentionTTL    time.Duration
	SessionRetentionSweep  time.Duration

	// Relay
	RelayMaxConcurrency int
	RelayEventTimeout   time.Duration

	ContextProfilePath string

	// Redis is only used to de-duplicate redelivered webhook events.
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	EventDedupTTL time.Duration
}

// Load reads configuration from environment variables, after loading a .env file when present.
func Load() *Config {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() *Config {
	return &Config{
		Port:      getEnv("PORT", "3000"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "json"))),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:     getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		GeminiTemperature: getEnvAsFloat32("GEMINI_TEMPERATURE", -1),

		LineChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret:      getEnv("LINE_CHANNEL_SECRET", ""),
		LineAPIBaseURL:         getEnv("LINE_API_BASE_URL", "https://api.line.me"),
		LineReplyTimeout:       getEnvAsDuration("LINE_REPLY_TIMEOUT", 10*time.Second),

		ConfidenceGateEnabled: getEnvAsBool("CONFIDENCE_GATE_ENABLED", true),
		ConfidenceThreshold:   getEnvAsInt("CONFIDENCE_THRESHOLD", 80),

		SessionInactivityTTL:   getEnvAsDuration("SESSION_INACTIVITY_TTL", time.Hour),
		SessionInactivitySweep: getEnvAsDuration("SESSION_INACTIVITY_SWEEP", time.Hour),
		SessionRetentionTTL:    getEnvAsDuration("SESSION_RETENTION_TTL", 30*24*time.Hour),
		SessionRetentionSweep:  getEnvAsDuration("SESSION_RETENTION_SWEEP", 24*time.Hour),

		RelayMaxConcurrency: getEnvAsInt("RELAY_MAX_CONCURRENCY", 16),
		RelayEventTimeout:   getEnvAsDuration("RELAY_EVENT_TIMEOUT", 60*time.Second),

		ContextProfilePath: getEnv("CONTEXT_PROFILE_PATH", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		EventDedupTTL: getEnvAsDuration("EVENT_DEDUP_TTL", 24*time.Hour),
	}
}

// Validate reports missing credentials required to serve webhooks.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		errs = append(errs, errors.New("config: GEMINI_API_KEY is required"))
	}
	if strings.TrimSpace(c.LineChannelAccessToken) == "" {
		errs = append(errs, errors.New("config: LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if strings.TrimSpace(c.LineChannelSecret) == "" {
		errs = append(errs, errors.New("config: LINE_CHANNEL_SECRET is required"))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		errs = append(errs, errors.New("config: CONFIDENCE_THRESHOLD must be within 0-100"))
	}
	return errors.Join(errs...)
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
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
