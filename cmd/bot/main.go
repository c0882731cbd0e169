package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/xaenox/diplomat-bot/internal/advisor"
	"github.com/xaenox/diplomat-bot/internal/api"
	"github.com/xaenox/diplomat-bot/internal/bot"
	"github.com/xaenox/diplomat-bot/internal/metrics"
	"github.com/xaenox/diplomat-bot/internal/rewriter"
	"github.com/xaenox/diplomat-bot/internal/storage"
	"github.com/xaenox/diplomat-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewProduction()
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}
	defer store.Close()

	collector := metrics.NewCollector("diplomat")
	rw := newRewriter(cfg.LLM, collector, logger)

	svc := advisor.New(store, rw, logger,
		advisor.WithTimeout(cfg.Advisor.Timeout),
		advisor.WithMaxHistory(cfg.Advisor.MaxHistory),
		advisor.WithMetrics(collector),
	)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if cfg.HTTP.Enabled {
		server := api.NewServer(svc, api.Options{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			PendingLimit:   cfg.HTTP.PendingLimit,
			Metrics:        collector,
		}, logger)
		httpServer := &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      server.Router(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("http server: %w", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown failed", zap.Error(err))
			}
		}()
	}

	if cfg.Telegram.Token != "" {
		b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.Debug, cfg.Telegram.Timeout, svc, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Start(ctx); err != nil {
				errs <- fmt.Errorf("telegram bot: %w", err)
			}
		}()
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, Telegram bot disabled")
	}

	if !cfg.HTTP.Enabled && cfg.Telegram.Token == "" {
		logger.Fatal("Nothing to run: enable http or set a Telegram token")
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errs:
		logger.Error("Front end failed", zap.Error(err))
		stop()
	}
	wg.Wait()
}

func newStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(logger), nil
	case "file":
		logger.Info("Using file storage", zap.String("path", cfg.Path))
		return storage.NewFileStorage(cfg.Path, logger)
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.Path))
		return storage.NewSQLiteStorage(cfg.Path, logger)
	case "postgres":
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host))
		return storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
	case "redis":
		logger.Info("Using Redis storage")
		return storage.NewRedisStorage(ctx, storage.RedisConfig{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newRewriter picks the completion provider. Without an API key the advisor
// still runs, echoing drafts back unchanged.
func newRewriter(cfg config.LLMConfig, collector *metrics.Collector, logger *zap.Logger) rewriter.Rewriter {
	if cfg.Provider == "echo" || cfg.APIKey == "" {
		logger.Warn("No LLM API key configured, suggestions will echo the draft",
			zap.String("provider", cfg.Provider))
		return rewriter.NewEchoRewriter()
	}

	var completer rewriter.Completer
	switch cfg.Provider {
	case "anthropic":
		completer = rewriter.NewAnthropicCompleter(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature, logger)
	case "gemini":
		completer = rewriter.NewGeminiCompleter(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature, logger)
	default:
		completer = rewriter.NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature, logger)
	}
	logger.Info("Using LLM provider",
		zap.String("provider", completer.Name()),
		zap.String("model", cfg.Model))

	return rewriter.NewLLMRewriter(completer, rewriter.BreakerConfig{
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		MinRequests:      cfg.Breaker.MinRequests,
	}, collector, logger)
}
