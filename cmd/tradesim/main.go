package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/tradesim/internal/cli"
	"github.com/efreitasn/tradesim/internal/config"
	"github.com/efreitasn/tradesim/internal/engine"
	"github.com/efreitasn/tradesim/internal/handler"
	"github.com/efreitasn/tradesim/internal/service"
	"github.com/efreitasn/tradesim/internal/sink"
	"github.com/efreitasn/tradesim/internal/store"
)

func main() {
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of the interactive command loop")
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	// stdout belongs to the command loop.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Market.
	var policy engine.FluctuationPolicy = engine.Static{}
	if cfg.PriceStep > 0 {
		policy = engine.NewRandomWalk(cfg.PriceStep, cfg.PriceSeed)
	}
	market := engine.NewMarket(cfg.Symbols, cfg.InitialPrice, policy)

	// Sinks.
	sinks, err := openSinks(cfg, logger)
	if err != nil {
		logger.Error("failed to open sinks", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Error("sink close error", slog.String("sink", s.Name()), slog.String("error", err.Error()))
			}
		}
	}()

	// Services.
	users := service.NewUserService(store.NewUserStore(), cfg.InitialCash, cfg.BcryptCost)
	trading := service.NewTradingService(users, market, sinks, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*serve {
		if err := cli.New(os.Stdin, os.Stdout, users, trading).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("command loop error", slog.String("error", err.Error()))
		}
		return
	}

	if cfg.CycleInterval > 0 {
		service.NewCycleScheduler(cfg.CycleInterval, trading, logger).Start(ctx)
	}

	router := handler.NewRouter(users, trading, cfg.CORSOrigin, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", slog.String("error", err.Error()))
	}

	// Graceful shutdown: stop HTTP server; the cancelled context stops the scheduler.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	stop()

	logger.Info("server stopped")
}

// openSinks builds the transaction sinks enabled in cfg.
func openSinks(cfg *config.Config, logger *slog.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if cfg.JournalPath != "" {
		j, err := sink.OpenJournal(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, j)
		logger.Info("journal enabled", slog.String("path", cfg.JournalPath))
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, sink.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		logger.Info("kafka publisher enabled", slog.String("topic", cfg.KafkaTopic))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, sink.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
		logger.Info("webhook enabled", slog.String("url", cfg.WebhookURL))
	}
	return sinks, nil
}
