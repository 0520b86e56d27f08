package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/tn1392/stock-reserve/internal/adapter/fetch"
	"github.com/tn1392/stock-reserve/internal/adapter/handler"
	"github.com/tn1392/stock-reserve/internal/adapter/notify"
	"github.com/tn1392/stock-reserve/internal/adapter/storage"
	"github.com/tn1392/stock-reserve/internal/config"
	"github.com/tn1392/stock-reserve/internal/core/service"
	"github.com/tn1392/stock-reserve/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL: the stock ledger's backing store.
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}
	if _, err := db.ExecContext(ctx, storage.Schema); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}
	logger.Info().Msg("connected to mysql")

	// Redis: the price cache backend.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	logger.Info().Msg("connected to redis")

	// Kafka: the settlement and price-update bus.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}

	ledger := storage.NewMySQLLedger(db)
	cache := storage.NewRedisCache(rdb, cfg.StaleWindow)
	notifier := notify.NewKafkaNotifier(writer, cfg.SettlementTopic, cfg.PriceTopic)

	httpClient := fetch.NewHTTPClient()
	sources := []port.PriceSource{
		fetch.NewHTTPSource(cfg.SecondarySourceName, cfg.SecondarySourceURL, httpClient),
		fetch.NewHTTPSource(cfg.RetailSourceName, cfg.RetailSourceURL, httpClient),
	}
	fetcher := fetch.NewFetcher(sources, fetch.Config{
		MaxConcurrent:  cfg.FetchConcurrency,
		AttemptTimeout: cfg.FetchAttemptTimeout,
		MaxAttempts:    cfg.FetchAttempts,
		BaseDelay:      cfg.FetchBaseDelay,
		MaxElapsed:     cfg.FetchMaxElapsed,
	}, logger)

	filter := service.NewExistenceFilter(cfg.FilterExpectedItems, cfg.FilterFPRate)
	prices := service.NewPriceService(cache, fetcher, notifier, filter, service.PriceConfig{
		QuoteTTL:        cfg.QuoteTTL,
		NegativeTTL:     cfg.NegativeTTL,
		RefreshLeaseTTL: cfg.RefreshLeaseTTL,
		RefreshBudget:   cfg.RefreshBudget,
	}, logger)
	reservations := service.NewReservationService(ledger, notifier, prices, service.ReservationConfig{
		MaxAttempts: cfg.ReserveMaxAttempts,
		BackoffMin:  cfg.ReserveBackoffMin,
		BackoffMax:  cfg.ReserveBackoffMax,
		CallBudget:  cfg.ReserveCallBudget,
	}, logger)

	httpHandler := handler.NewHTTPHandler(reservations, prices, ledger, cfg.SecondarySourceName)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/reserve", httpHandler.Reserve)
	mux.HandleFunc("/api/price", httpHandler.Price)
	mux.HandleFunc("/api/items", httpHandler.CreateItem)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info().Msg("HTTP server stopped")

	if err := writer.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close kafka writer")
	}
	rdb.Close()
	db.Close()
	logger.Info().Msg("connections closed")
}
