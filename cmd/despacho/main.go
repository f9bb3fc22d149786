// Command despacho delivers notifications to a Telegram chat, either as
// a one-shot dispatch of a JSON item or as a long-running AMQP consumer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/prilive-com/despacho"
	"github.com/prilive-com/despacho/compose"
	"github.com/prilive-com/despacho/config"
	"github.com/prilive-com/despacho/internal/fetch"
	"github.com/prilive-com/despacho/queue"
	"github.com/prilive-com/despacho/sender"
)

var (
	configPath = flag.String("config", "", "Path to the YAML config file")
	itemPath   = flag.String("item", "", "Dispatch a single JSON item from this file and exit")
)

func main() {
	flag.Parse()

	// Load .env if present; existing env vars win
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		logger.Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *itemPath != "":
		if err := dispatchItem(ctx, cfg, dispatcher, *itemPath); err != nil {
			logger.Error("dispatch failed", "error", err)
			os.Exit(1)
		}
		logger.Info("item dispatched")

	case cfg.Queue.URL != "":
		consumer := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.Name, dispatcher,
			queue.WithLogger(logger))
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("consumer stopped", "error", err)
			os.Exit(1)
		}
		logger.Info("consumer stopped")

	default:
		logger.Error("nothing to do: pass -item or configure queue.url")
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func buildDispatcher(cfg *config.Config, logger *slog.Logger) (*despacho.Dispatcher, error) {
	pool, err := despacho.NewPool(cfg.SecretTokens()...)
	if err != nil {
		return nil, err
	}

	connectDelay, err := cfg.ParseConnectDelay()
	if err != nil {
		return nil, err
	}

	senderCfg := sender.DefaultConfig()
	if cfg.APIBaseURL != "" {
		senderCfg.BaseURL = cfg.APIBaseURL
	}

	return despacho.New(pool, cfg.ChatID,
		despacho.WithLogger(logger),
		despacho.WithSenderConfig(senderCfg),
		despacho.WithConnectDelay(connectDelay),
		despacho.WithFetcher(&fetch.YtDlp{Binary: cfg.YtDlpBinary}),
	)
}

func dispatchItem(ctx context.Context, cfg *config.Config, d *despacho.Dispatcher, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var item compose.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}

	composer := compose.New(
		compose.WithMaxBodyLength(cfg.MaxBodyLength),
		compose.WithPromoLine(cfg.PromoLine),
	)
	return d.Dispatch(ctx, composer.Payload(item))
}
