package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/uvolbolmasin/boxbot/internal/bot"
	"github.com/uvolbolmasin/boxbot/internal/config"
	"github.com/uvolbolmasin/boxbot/internal/db"
	"github.com/uvolbolmasin/boxbot/internal/health"
	"github.com/uvolbolmasin/boxbot/internal/logger"
	"github.com/uvolbolmasin/boxbot/internal/mirror"
	"github.com/uvolbolmasin/boxbot/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.App.Env)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Bot stopped with error", zap.Error(err))
	}
	log.Info("Bot stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting box bot", zap.String("env", cfg.App.Env), zap.Bool("webhook", cfg.WebhookMode()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Initializing database...", zap.String("driver", cfg.Database.Driver))
	database, err := db.New(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	sessions, closeSessions, err := newSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	recorder, closeMirror, err := newMirror(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeMirror()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("failed to connect to telegram: %w", err)
	}
	log.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))

	b := bot.New(bot.Config{
		AdminID:        cfg.Telegram.AdminID,
		RadiusKm:       cfg.Booking.RadiusKm,
		DefaultBoxes:   cfg.Booking.DefaultBoxes,
		CodeLength:     cfg.Booking.CodeLength,
		BoxPrice:       cfg.Booking.BoxPrice,
		HandlerTimeout: cfg.App.HandlerTimeout,
		PollTimeout:    cfg.Telegram.PollTimeout,
		Workers:        cfg.Telegram.Workers,
	}, bot.Deps{
		API:       api,
		Inventory: database,
		Users:     database,
		Sessions:  sessions,
		Mirror:    recorder,
		Logger:    log,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := health.Options{DB: database, Logger: log.Named("http")}
	if cfg.WebhookMode() {
		opts.WebhookPath = cfg.Telegram.WebhookPath
		opts.WebhookSecret = cfg.Telegram.WebhookSecret
		opts.Updates = b
		b.Start()
	}
	srv := health.NewServer(cfg.Server, health.NewRouter(opts))

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		if err := srv.Run(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if cfg.WebhookMode() {
		if err := registerWebhook(api, cfg.Telegram); err != nil {
			b.Stop()
			return err
		}
		log.Info("Bot is running in webhook mode")
	} else {
		pollDone := make(chan struct{})
		defer func() { <-pollDone }()
		go func() {
			defer close(pollDone)
			log.Info("Bot is running in polling mode")
			if err := b.Poll(ctx, api); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err = <-errCh:
		log.Error("Shutting down after failure", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", zap.Error(err))
	}
	b.Stop()

	return err
}

func newSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (session.Store, func(), error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(), func() {}, nil
	}

	client, err := session.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using redis sessions", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Session.TTL))
	return session.NewRedisStore(client, cfg.Session.TTL), func() { client.Close() }, nil
}

func newMirror(ctx context.Context, cfg *config.Config, log *zap.Logger) (mirror.Recorder, func(), error) {
	if !cfg.Mirror.Enabled {
		return mirror.Nop{}, func() {}, nil
	}

	sink, err := mirror.NewSheetsSink(ctx, cfg.Mirror.CredentialsFile, cfg.Mirror.SpreadsheetID)
	if err != nil {
		return nil, nil, err
	}
	m := mirror.New(sink, mirror.Config{
		QueueSize:  cfg.Mirror.QueueSize,
		MaxRetries: cfg.Mirror.MaxRetries,
		BaseDelay:  cfg.Mirror.BaseDelay,
	}, log)
	log.Info("Spreadsheet mirror enabled")
	return m, m.Close, nil
}

// registerWebhook calls setWebhook directly: WebhookConfig has no field for
// secret_token.
func registerWebhook(api *tgbotapi.BotAPI, cfg config.TelegramConfig) error {
	url := strings.TrimRight(cfg.WebhookURL, "/") + cfg.WebhookPath
	params := tgbotapi.Params{"url": url, "secret_token": cfg.WebhookSecret}
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}
