// Package config provides environment configuration for the voice platform.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Database settings; empty DatabaseURL selects the in-memory store.
	DatabaseURL    string
	MigrationsPath string

	// NATS settings (background finalize queue)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// LLM settings
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	SummaryModel       string
	CompletionProvider string

	// Analysis chain settings
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration

	// Session resolution
	RecencyWindow time.Duration

	// Finalization settings
	FinalizeAsync       bool
	FinalizeMaxAttempts int
	FinalizeEndReasons  []string
	EnqueueTimeout      time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// LLM
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		SummaryModel:       getEnv("SUMMARY_MODEL", "gpt-4o-mini"),
		CompletionProvider: getEnv("COMPLETION_PROVIDER", "openai"),

		// Analysis chain
		PrimaryTimeout:   getDurationEnv("ANALYSIS_PRIMARY_TIMEOUT", 60*time.Second),
		SecondaryTimeout: getDurationEnv("ANALYSIS_SECONDARY_TIMEOUT", 30*time.Second),

		// Session resolution
		RecencyWindow: getDurationEnv("RECENCY_WINDOW", 45*time.Minute),

		// Finalization
		FinalizeAsync:       getBoolEnv("FINALIZE_ASYNC", false),
		FinalizeMaxAttempts: getIntEnv("FINALIZE_MAX_ATTEMPTS", 3),
		FinalizeEndReasons:  getListEnv("FINALIZE_END_REASONS", []string{"manual_stop", "channel_closed", "close", "end"}),
		EnqueueTimeout:      getDurationEnv("ENQUEUE_TIMEOUT", 15*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
