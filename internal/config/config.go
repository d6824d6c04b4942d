package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	AppName  string
	Env      string
	Host     string
	Port     int
	LogLevel string

	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	JWTSecret            string
	EncryptKey           string
	LegacyEncryptionKeys []string
	InternalAPIKey       string

	CORSOrigins  []string
	APIRateLimit int

	StoreTimeout     time.Duration
	RingTimeout      time.Duration
	WSSendBuffer     int
	MaxMessageLength int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "carelink realtime"),
		Env:      getEnv("APP_ENV", "development"),
		Host:     getEnv("HTTP_HOST", "0.0.0.0"),
		Port:     getEnvAsInt("HTTP_PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DatabaseURL: getEnv("DATABASE_URL", postgresURLFromParts()),
		SQLitePath:  getEnv("SQLITE_PATH", "carelink.db"),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		EncryptKey:           os.Getenv("ENCRYPTION_KEY"),
		LegacyEncryptionKeys: splitList(os.Getenv("LEGACY_ENCRYPTION_KEYS")),
		InternalAPIKey:       os.Getenv("INTERNAL_API_KEY"),

		CORSOrigins:  splitList(os.Getenv("CORS_ORIGINS")),
		APIRateLimit: getEnvAsInt("API_RATE_LIMIT", 300),

		StoreTimeout:     getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		RingTimeout:      getEnvAsDuration("RING_TIMEOUT", 60*time.Second),
		WSSendBuffer:     getEnvAsInt("WS_SEND_BUFFER", 256),
		MaxMessageLength: getEnvAsInt("MAX_MESSAGE_LENGTH", 5000),
	}

	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.EncryptKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.RingTimeout < 0 {
		return fmt.Errorf("RING_TIMEOUT must not be negative")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func postgresURLFromParts() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "postgres"), getEnv("POSTGRES_PASSWORD", "postgres")),
		Host:     fmt.Sprintf("%s:%s", getEnv("POSTGRES_HOST", "localhost"), getEnv("POSTGRES_PORT", "5432")),
		Path:     getEnv("POSTGRES_DB", "carelink"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
