// Package config loads service configuration from the environment and an
// optional routing.yml tunables file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// OpenAIServerKey is the server-funded primary-provider credential,
	// used only for callers on an active pro tier. May be empty.
	OpenAIServerKey string
	OpenAIBaseURL   string

	// GeminiPoolKeys is the shared secondary-provider credential pool.
	// Falls back to a single GEMINI_API_KEY when the list is absent.
	// An empty pool is valid but degraded: callers without a dedicated
	// secondary key cannot be served by the secondary provider.
	GeminiPoolKeys []string
	GeminiBaseURL  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "studyloop"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "studyloop"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		OpenAIServerKey: strings.TrimSpace(getenv("OPENAI_SERVER_KEY", "")),
		OpenAIBaseURL:   getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiPoolKeys:  loadPoolKeys(),
		GeminiBaseURL:   getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
	}
}

func loadPoolKeys() []string {
	raw := getenv("GEMINI_POOL_KEYS", "")
	if raw == "" {
		if single := strings.TrimSpace(getenv("GEMINI_API_KEY", "")); single != "" {
			return []string{single}
		}
		return nil
	}
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRoutingConfig),
)
