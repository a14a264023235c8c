package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ListenAddr string

	BackendURL     string
	BackendTimeout time.Duration

	CookieSecret []byte
	CookieSecure bool

	DatabaseURL string

	KafkaBrokers []string
	KafkaTopic   string

	ElasticURL      string
	ElasticUser     string
	ElasticPassword string
	ElasticIndex    string

	LogLevel      string
	AuthRateLimit float64

	// TrustedProxies are CIDR ranges whose X-Forwarded-For is believed.
	TrustedProxies []string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:             EnvDefault("APP_ENV", "development"),
		ListenAddr:      EnvDefault("DASHBOARD_ADDR", ":3000"),
		BackendURL:      strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		BackendTimeout:  EnvDurationDefault("BACKEND_TIMEOUT", 30*time.Second),
		CookieSecret:    []byte(os.Getenv("COOKIE_SECRET")),
		CookieSecure:    EnvBoolDefault("COOKIE_SECURE", true),
		DatabaseURL:     EnvDefault("DATABASE_URL", "dashboard.db"),
		KafkaBrokers:    CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      EnvDefault("KAFKA_TOPIC", "auth_events"),
		ElasticURL:      os.Getenv("ES_URL"),
		ElasticUser:     os.Getenv("ES_USER"),
		ElasticPassword: os.Getenv("ES_PASSWORD"),
		ElasticIndex:    EnvDefault("ES_INDEX", "auth_events"),
		LogLevel:        EnvDefault("LOG_LEVEL", "info"),
		AuthRateLimit:   EnvFloatDefault("AUTH_RATE_LIMIT", 5),
		TrustedProxies:  CSV(os.Getenv("TRUSTED_PROXIES")),
	}

	if cfg.BackendURL == "" {
		return nil, errors.New("missing required env BACKEND_URL")
	}
	if len(cfg.CookieSecret) == 0 {
		return nil, errors.New("missing required env COOKIE_SECRET")
	}
	if len(cfg.CookieSecret) < 32 && cfg.Env == "production" {
		return nil, errors.New("COOKIE_SECRET must be at least 32 bytes in production")
	}
	return cfg, nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvBoolDefault(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func EnvFloatDefault(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
