package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration
type Config struct {
	Port                 string
	Env                  string
	LogLevel             string
	StripeSecretKey      string
	StripePublishableKey string
	CORSAllowedOrigins   []string
	ReportWindowHours    int
	ChargePageLimit      int
	FeeLookupConcurrency int
	GatewayRetryAttempts int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "4242"),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
		CORSAllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ReportWindowHours:    getEnvAsInt("REPORT_WINDOW_HOURS", 36),
		ChargePageLimit:      getEnvAsInt("CHARGE_PAGE_LIMIT", 100),
		FeeLookupConcurrency: getEnvAsInt("FEE_LOOKUP_CONCURRENCY", 8),
		GatewayRetryAttempts: getEnvAsInt("GATEWAY_RETRY_ATTEMPTS", 3),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
