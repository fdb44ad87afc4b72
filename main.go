package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"fno-signals/config"
	"fno-signals/controllers"
	"fno-signals/database"
	"fno-signals/interfaces"
	"fno-signals/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	intradayRetention = 7 * 24 * time.Hour
	cleanupInterval   = 6 * time.Hour
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	loc := cfg.Location()

	logger.WithFields(logrus.Fields{
		"driver": cfg.DBDriver,
		"tz":     loc.String(),
	}).Info("Starting F&O signals server")

	storage, err := database.NewLocalStorage(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}
	storage.SetLogger(logger)
	defer storage.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ConstituentsCSV != "" {
		n, err := storage.SeedConstituents(ctx, cfg.ConstituentsCSV)
		if err != nil {
			logger.WithError(err).Warn("Failed to seed constituents")
		} else {
			logger.WithField("count", n).Info("Constituents seeded")
		}
	}

	var quotes interfaces.QuotePort
	if cfg.KiteAPIKey != "" && cfg.KiteAccessToken != "" {
		kite := services.NewKiteQuoteService(cfg.KiteAPIKey, cfg.KiteAccessToken, cfg.KiteBaseURL, cfg.QuoteRate, cfg.InstrumentTTL, loc)
		kite.SetLogger(logger)
		quotes = kite
		logger.Info("Live quotes enabled")
	} else {
		logger.Warn("Kite credentials not set, live data disabled")
	}

	analytics := services.NewAnalyticsService(storage, quotes, services.NewTTLCache(), services.AnalyticsConfig{
		SQLTTL:      cfg.CacheSQLTTL,
		LiveTTL:     cfg.CacheLiveTTL,
		IntradayTTL: cfg.CacheIntradayTTL,
		Location:    loc,
	}, cfg.QuoteTimeout)
	analytics.SetLogger(logger)

	var sink services.AlertSink = services.NoopAlertSink{}
	if cfg.KafkaBroker != "" {
		kafkaSink, err := services.NewKafkaAlertSink(cfg.KafkaBroker, cfg.KafkaAlertTopic, logger)
		if err != nil {
			logger.WithError(err).Warn("Kafka unavailable, breakout alerts disabled")
		} else {
			sink = kafkaSink
		}
	}
	analytics.SetAlertSink(sink)
	defer sink.Close()

	go runIntradayCleanup(ctx, storage, logger)

	if cfg.GinMode == gin.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	analyticsController := controllers.NewAnalyticsController(analytics)
	streamController := controllers.NewStreamController(analytics, cfg.StreamInterval)
	streamController.SetLogger(logger)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), controllers.ZstdMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"live":   analytics.LiveEnabled(),
		})
	})

	api := router.Group("/api/v1")
	analyticsController.RegisterRoutes(api)
	api.GET("/stream/breakouts", streamController.HandleBreakoutStream)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.ServerPort).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	streamController.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shut down")
	}
	logger.Info("Server stopped")
}

// runIntradayCleanup drops minute bars past the retention window
func runIntradayCleanup(ctx context.Context, storage *database.LocalStorage, logger *logrus.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		if err := storage.CleanupIntraday(ctx, time.Now().Add(-intradayRetention)); err != nil {
			logger.WithError(err).Warn("Intraday cleanup failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
