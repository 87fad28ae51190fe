package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"comingsoon/internal/broadcast"
	"comingsoon/internal/config"
	"comingsoon/internal/feed"
	"comingsoon/internal/identity"
	"comingsoon/internal/intake"
	"comingsoon/internal/metrics"
	"comingsoon/internal/notifier"
	"comingsoon/internal/server"
	"comingsoon/internal/storage"
	"comingsoon/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			return err
		}
	}

	store, err := storage.NewSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		return err
	}
	defer func() { _ = store.Close() }()

	reg := metrics.New()

	watcher := feed.NewWatcher(store, log)
	watcher.SetPollInterval(cfg.FeedPollInterval)
	watcher.SetRecorder(reg)

	gate := identity.New(store, []byte(cfg.SessionSecret), cfg.SessionTTL)
	if cfg.AdminEmail != "" {
		if err := gate.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Error("provision admin", "email", cfg.AdminEmail, "error", err)
			return err
		}
		log.Info("admin account ready", "email", cfg.AdminEmail)
	}

	intakeOpts := []intake.Option{
		intake.WithNotifier(watcher),
		intake.WithRecorder(reg),
		intake.WithPeerAddress(cfg.TrustPeerAddress),
	}

	// Background workers stop on cancel; wait for them before closing the store.
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	if cfg.RedisURL != "" {
		client, err := broadcast.Dial(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("connect redis", "error", err)
			return err
		}

		bc := broadcast.NewRedis(client, cfg.RedisChannel, log)
		intakeOpts = append(intakeOpts, intake.WithNotifier(bc))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = client.Close() }()
			if err := bc.Listen(ctx, watcher.Notify); err != nil {
				log.Error("redis listener stopped", "error", err)
			}
		}()
	}

	if cfg.TelegramEnabled() {
		bot, err := telegram.New(cfg.TelegramBotToken, store, cfg, log)
		if err != nil {
			log.Error("create telegram bot", "error", err)
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Run(ctx)
		}()

		if len(cfg.NotifyChats) > 0 {
			n := notifier.New(watcher, bot, cfg.NotifyChats, log)
			n.SetRecorder(reg)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := n.Run(ctx); err != nil {
					log.Error("lead notifier stopped", "error", err)
				}
			}()
		}
	}

	srv, err := server.New(server.Config{
		Addr:          cfg.HTTPAddr,
		SecureCookies: cfg.SecureCookies,
	}, server.Deps{
		Intake:    intake.NewHandler(store, log, intakeOpts...),
		Gate:      gate,
		Feed:      watcher,
		Documents: store,
		Metrics:   reg,
		Log:       log,
	})
	if err != nil {
		log.Error("create http server", "error", err)
		return err
	}

	log.Info("starting server", "addr", cfg.HTTPAddr)
	return srv.Run(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
