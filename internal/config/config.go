// Package config loads service configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all service configuration. Load it once at startup.
type Config struct {
	// Env is "production" or anything else for development.
	Env   string
	Debug bool
	Port  string

	Database DBConfig
	Auth     AuthConfig

	// AuditInterval is how often the payment split audit runs.
	AuditInterval time.Duration

	// SplitCacheSize bounds the memoized split calculations. Zero disables it.
	SplitCacheSize int
}

// DBConfig selects the gorm driver and connection string.
type DBConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	// DSN is a file path for sqlite or a libpq/URL connection string for postgres.
	DSN string

	// LogSQL turns on gorm statement logging.
	LogSQL bool
}

// AuthConfig holds the token signing secret and the bootstrap API credentials.
type AuthConfig struct {
	JWTSecret string
	APIKey    string
	APISecret string

	// InternalAPIKey may call the /internal routes. Left empty, no key can.
	InternalAPIKey    string
	InternalAPISecret string
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from .env (optional) and environment variables.
func Load() *Config {
	_ = godotenv.Load()

	debug := getEnvBool("DEBUG", false)
	return &Config{
		Env:   getEnv("ENV", "development"),
		Debug: debug,
		Port:  getEnv("PORT", "8080"),
		Database: DBConfig{
			Driver: getEnv("DB_DRIVER", DriverSQLite),
			DSN:    getEnv("DB_DSN", "commissions.db"),
			LogSQL: getEnvBool("DB_LOG_SQL", debug),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "klear-secret-key"),
			APIKey:    getEnv("API_KEY", "test-api-key"),
			APISecret: getEnv("API_SECRET", "test-api-secret"),

			InternalAPIKey:    getEnv("INTERNAL_API_KEY", ""),
			InternalAPISecret: getEnv("INTERNAL_API_SECRET", ""),
		},
		AuditInterval:  getEnvDuration("AUDIT_INTERVAL", 5*time.Minute),
		SplitCacheSize: getEnvInt("SPLIT_CACHE_SIZE", 256),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
