package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort string
	GinMode    string

	DBDriver string
	DBDSN    string

	KiteAPIKey      string
	KiteAccessToken string
	KiteBaseURL     string
	QuoteTimeout    time.Duration
	QuoteRate       float64

	CacheSQLTTL      time.Duration
	CacheLiveTTL     time.Duration
	CacheIntradayTTL time.Duration
	InstrumentTTL    time.Duration

	MarketTZ        string
	ConstituentsCSV string

	KafkaBroker     string
	KafkaAlertTopic string
	StreamInterval  time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, after applying an optional .env file
func Load() *Config {
	envErr := godotenv.Load()

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		GinMode:    getEnv("GIN_MODE", "release"),

		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "data/market.db"),

		KiteAPIKey:      getEnv("KITE_API_KEY", ""),
		KiteAccessToken: getEnv("KITE_ACCESS_TOKEN", ""),
		KiteBaseURL:     strings.TrimRight(getEnv("KITE_BASE_URL", "https://api.kite.trade"), "/"),
		QuoteTimeout:    time.Duration(getEnvInt("QUOTE_TIMEOUT_SECONDS", 5)) * time.Second,
		QuoteRate:       getEnvFloat("QUOTE_RATE_PER_SECOND", 1),

		CacheSQLTTL:      getEnvDuration("CACHE_SQL_TTL", 6*time.Hour),
		CacheLiveTTL:     getEnvDuration("CACHE_LIVE_TTL", 15*time.Minute),
		CacheIntradayTTL: getEnvDuration("CACHE_INTRADAY_TTL", 60*time.Second),
		InstrumentTTL:    getEnvDuration("INSTRUMENT_TTL", 24*time.Hour),

		MarketTZ:        getEnv("MARKET_TZ", "Asia/Kolkata"),
		ConstituentsCSV: getEnv("CONSTITUENTS_CSV", ""),

		KafkaBroker:     getEnv("KAFKA_BROKER", ""),
		KafkaAlertTopic: getEnv("KAFKA_ALERT_TOPIC", "fno-breakouts"),
		StreamInterval:  time.Duration(getEnvInt("STREAM_INTERVAL_SECONDS", 20)) * time.Second,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if envErr != nil {
		cfg.NewLogger().Debug("No .env file found, using environment variables")
	}
	return cfg
}

// NewLogger builds a logger honoring LOG_LEVEL and LOG_FORMAT
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Location resolves the market time zone, falling back to a fixed IST offset
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTZ)
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
