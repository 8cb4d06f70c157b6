package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PortalURL     string
	SelectorsPath string
	ChromeBin     string
	Headless      bool

	NavTimeout       time.Duration
	QuiescenceWindow time.Duration
	PollInterval     time.Duration

	MaxRetries   int
	RetryBase    time.Duration
	RetryMaxWait time.Duration

	MaxPages    int
	RateLimitMs int

	CSVOutputPath   string
	PostgresEnabled bool

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PortalURL:     getEnv("PORTAL_URL", "https://www.nadlan.gov.il/"),
		SelectorsPath: getEnv("SELECTORS_PATH", ""),
		ChromeBin:     getEnv("CHROME_BIN", ""),
		Headless:      getEnvBool("HEADLESS", true),

		NavTimeout:       getEnvDuration("NAV_TIMEOUT", 60*time.Second),
		QuiescenceWindow: getEnvDuration("QUIESCENCE_WINDOW", 1500*time.Millisecond),
		PollInterval:     getEnvDuration("POLL_INTERVAL", 250*time.Millisecond),

		MaxRetries:   getEnvInt("MAX_RETRIES", 3),
		RetryBase:    getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxWait: getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),

		MaxPages:    getEnvInt("MAX_PAGES", 200),
		RateLimitMs: getEnvInt("RATE_LIMIT_MS", 1500),

		CSVOutputPath:   getEnv("CSV_OUTPUT_PATH", "./output/transactions.csv"),
		PostgresEnabled: getEnvBool("POSTGRES_ENABLED", false),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "nadlan_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
