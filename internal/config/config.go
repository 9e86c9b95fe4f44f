package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings. Missing commerce credentials
// are not fatal here; the salesforce client reports ErrNotConfigured on first
// use so the rest of the gateway keeps working.
type Config struct {
	HTTPPort       string
	AllowedOrigins []string
	PublicBaseURL  string
	WidgetDir      string

	// Salesforce org
	SalesforceLoginURL   string
	SalesforceBaseURL    string
	SalesforceSiteURL    string
	SalesforceAPIVersion string
	SalesforceClientID   string
	SalesforcePrivateKey string
	SalesforceUsername   string
	SalesforcePassword   string

	AssistantBaseURL string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	RequestTimeout   time.Duration
	AssistantTimeout time.Duration
	ShutdownTimeout  time.Duration
	CacheTTL         time.Duration

	RateLimitPerMinute int
}

// Load reads configuration from the environment. A .env file is honored when
// present, mirroring local development setups.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:       getEnv("HTTP_PORT", "3002"),
		AllowedOrigins: splitAndTrim(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		WidgetDir:      getEnv("WIDGET_DIR", ""),

		SalesforceLoginURL:   strings.TrimSuffix(getEnv("SF_LOGIN_URL", "https://login.salesforce.com"), "/"),
		SalesforceBaseURL:    strings.TrimSuffix(getEnv("SF_BASE_URL", ""), "/"),
		SalesforceSiteURL:    strings.TrimSuffix(getEnv("SF_SITE_URL", ""), "/"),
		SalesforceAPIVersion: getEnv("SF_API_VERSION", "v60.0"),
		SalesforceClientID:   getEnv("SF_CLIENT_ID", ""),
		SalesforcePrivateKey: getEnv("SF_PRIVATE_KEY", ""),
		SalesforceUsername:   getEnv("SF_USERNAME", ""),
		SalesforcePassword:   getEnv("SF_PASSWORD", ""),

		AssistantBaseURL: strings.TrimSuffix(getEnv("ASSISTANT_BASE_URL", "http://localhost:8000"), "/"),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "concierge-events"),

		RequestTimeout:   getDuration("REQUEST_TIMEOUT", 10*time.Second),
		AssistantTimeout: getDuration("ASSISTANT_TIMEOUT", 30*time.Second),
		ShutdownTimeout:  getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		CacheTTL:         getDuration("PRODUCT_CACHE_TTL", 5*time.Minute),

		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 60),
	}
}

// SalesforceConfigured reports whether either credential set is present.
func (c *Config) SalesforceConfigured() bool {
	if c.SalesforceClientID != "" && c.SalesforcePrivateKey != "" {
		return true
	}
	return c.SalesforceUsername != "" && c.SalesforcePassword != ""
}

// Validate rejects settings that can never work. Absent optional features are
// fine (the gateway degrades); half of a credential pair is a deployment
// mistake worth failing fast on.
func (c *Config) Validate() error {
	var problems []string
	if (c.SalesforceClientID != "") != (c.SalesforcePrivateKey != "") {
		problems = append(problems, "SF_CLIENT_ID and SF_PRIVATE_KEY must be set together")
	}
	if (c.SalesforceUsername != "") != (c.SalesforcePassword != "") {
		problems = append(problems, "SF_USERNAME and SF_PASSWORD must be set together")
	}
	if c.SalesforceBaseURL != "" && !c.SalesforceConfigured() {
		problems = append(problems, "SF_BASE_URL is set but no Salesforce credentials are configured")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		problems = append(problems, "KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

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
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
