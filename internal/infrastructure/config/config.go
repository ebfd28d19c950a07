package config

import (
	"fmt"
	"os"
	"time"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

type Config struct {
	DBDriver string
	DBDSN    string

	ServerHost string
	ServerPort string
	LogLevel   string

	// ScrapeInterval drives the periodic all-instruments run in serve mode.
	ScrapeInterval time.Duration

	// SelectorTimeout bounds the wait for a page's ready selector;
	// SettleDelay is the extra pause that lets async widgets populate.
	SelectorTimeout time.Duration
	SettleDelay     time.Duration

	// ChromePath pins the browser binary; empty means auto-discovery.
	ChromePath string

	CacheTTL time.Duration
	SeedFile string
}

func Load() (*Config, error) {
	driver := getEnvOrDefault("DB_DRIVER", DBDriverSQLite)
	if driver != DBDriverPostgres && driver != DBDriverSQLite {
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", driver)
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		if driver == DBDriverPostgres {
			return nil, fmt.Errorf("DB_DSN environment variable is required for postgres")
		}
		dsn = "arzwatch.db"
	}

	scrapeInterval, err := parseDurationEnv("SCRAPE_INTERVAL", "30m")
	if err != nil {
		return nil, err
	}
	selectorTimeout, err := parseDurationEnv("SCRAPING_SELECTOR_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	settleDelay, err := parseDurationEnv("SCRAPING_SLEEP_TIME", "5s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDurationEnv("LATEST_PRICE_CACHE_TTL", "5m")
	if err != nil {
		return nil, err
	}

	return &Config{
		DBDriver:        driver,
		DBDSN:           dsn,
		ServerHost:      getEnvOrDefault("SERVER_HOST", "localhost"),
		ServerPort:      getEnvOrDefault("SERVER_PORT", "8080"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		ScrapeInterval:  scrapeInterval,
		SelectorTimeout: selectorTimeout,
		SettleDelay:     settleDelay,
		ChromePath:      os.Getenv("CHROME_PATH"),
		CacheTTL:        cacheTTL,
		SeedFile:        getEnvOrDefault("SEED_FILE", "configs/seed.yaml"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
