package config

import (
	"log"
	"os"
	"strings"
	"time"

	"forecast-dashboard/pkg/models"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Environment string
	APIKey      string

	ForecastAPIURL string
	BackendTimeout time.Duration
	ViewIdleTTL    time.Duration

	DefaultProductID    string
	DefaultFromDate     string
	DefaultToDate       string
	DefaultChatProvider string

	OTLPEndpoint    string
	OTELServiceName string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		APIKey:              getEnv("API_KEY", ""),
		ForecastAPIURL:      strings.TrimRight(getEnv("FORECAST_API_URL", "http://localhost:8000"), "/"),
		BackendTimeout:      getDuration("BACKEND_TIMEOUT", 15*time.Second),
		ViewIdleTTL:         getDuration("VIEW_IDLE_TTL", 30*time.Minute),
		DefaultProductID:    getEnv("DEFAULT_PRODUCT_ID", "P001"),
		DefaultFromDate:     getEnv("DEFAULT_FROM_DATE", "2023-06-01"),
		DefaultToDate:       getEnv("DEFAULT_TO_DATE", "2023-06-30"),
		DefaultChatProvider: getEnv("DEFAULT_CHAT_PROVIDER", "primary"),
		OTLPEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELServiceName:     getEnv("OTEL_SERVICE_NAME", "forecast-dashboard"),
	}
}

// DefaultQuery is the query new forecast views start with.
func (c *Config) DefaultQuery() (models.ForecastQuery, error) {
	return models.NewForecastQuery(c.DefaultProductID, c.DefaultFromDate, c.DefaultToDate)
}

// ChatProvider is the provider new chat views start with; unknown values fall
// back to the primary provider.
func (c *Config) ChatProvider() models.Provider {
	p, err := models.ParseProvider(c.DefaultChatProvider)
	if err != nil {
		log.Printf("Warning: %v, using %s", err, models.ProviderPrimary)
		return models.ProviderPrimary
	}
	return p
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return d
}
