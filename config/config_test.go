package config

import (
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
)

// unsetEnv clears key for the duration of the test
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "SERVER_PORT", "DB_DRIVER", "DB_DSN", "KITE_BASE_URL", "QUOTE_TIMEOUT_SECONDS",
		"QUOTE_RATE_PER_SECOND", "CACHE_SQL_TTL", "CACHE_LIVE_TTL", "CACHE_INTRADAY_TTL",
		"MARKET_TZ", "KAFKA_ALERT_TOPIC", "STREAM_INTERVAL_SECONDS", "LOG_LEVEL")

	cfg := Load()
	if cfg.ServerPort != "8080" || cfg.DBDriver != "sqlite" || cfg.DBDSN != "data/market.db" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.KiteBaseURL != "https://api.kite.trade" || cfg.QuoteTimeout != 5*time.Second || cfg.QuoteRate != 1 {
		t.Errorf("unexpected quote defaults %+v", cfg)
	}
	if cfg.CacheSQLTTL != 6*time.Hour || cfg.CacheLiveTTL != 15*time.Minute || cfg.CacheIntradayTTL != time.Minute {
		t.Errorf("unexpected cache defaults %+v", cfg)
	}
	if cfg.MarketTZ != "Asia/Kolkata" || cfg.KafkaAlertTopic != "fno-breakouts" || cfg.StreamInterval != 20*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KITE_BASE_URL", "http://localhost:8000/")
	t.Setenv("QUOTE_TIMEOUT_SECONDS", "2")
	t.Setenv("QUOTE_RATE_PER_SECOND", "3.5")
	t.Setenv("CACHE_LIVE_TTL", "90s")
	t.Setenv("DB_DRIVER", "clickhouse")

	cfg := Load()
	if cfg.ServerPort != "9090" || cfg.DBDriver != "clickhouse" {
		t.Errorf("overrides not applied %+v", cfg)
	}
	if cfg.KiteBaseURL != "http://localhost:8000" {
		t.Errorf("trailing slash should be trimmed, got %q", cfg.KiteBaseURL)
	}
	if cfg.QuoteTimeout != 2*time.Second || cfg.QuoteRate != 3.5 || cfg.CacheLiveTTL != 90*time.Second {
		t.Errorf("unexpected parsed values %+v", cfg)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("QUOTE_TIMEOUT_SECONDS", "soon")
	t.Setenv("QUOTE_RATE_PER_SECOND", "-1")
	t.Setenv("CACHE_SQL_TTL", "6 hours")

	cfg := Load()
	if cfg.QuoteTimeout != 5*time.Second || cfg.QuoteRate != 1 || cfg.CacheSQLTTL != 6*time.Hour {
		t.Errorf("invalid values should fall back to defaults, got %+v", cfg)
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{MarketTZ: "Asia/Kolkata"}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Errorf("location = %v", cfg.Location())
	}

	cfg.MarketTZ = "Mars/Olympus"
	_, offset := time.Date(2024, 2, 6, 0, 0, 0, 0, cfg.Location()).Zone()
	if offset != 19800 {
		t.Errorf("expected the fixed IST fallback, got offset %d", offset)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	logger := cfg.NewLogger()
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("expected a JSON formatter, got %T", logger.Formatter)
	}

	cfg = &Config{LogLevel: "loud"}
	logger = cfg.NewLogger()
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("unknown levels should default to info, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("expected a text formatter, got %T", logger.Formatter)
	}
}
