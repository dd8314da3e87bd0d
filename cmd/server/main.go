package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"prontuario/internal/app"
	"prontuario/internal/config"
	"prontuario/internal/ratelimit"
	"prontuario/internal/server"
	"prontuario/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		EncryptionKey: cfg.EncryptionKey,
		Production:    cfg.IsProduction(),
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    sessionTTL,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit == 0 {
		loginLimit = 10
	}
	loginLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "prontuario:ratelimit:login", loginLimit, time.Minute)
	if err != nil {
		log.Fatalf("failed to init login rate limiter: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:          appCore,
		CronSecret:   cfg.CronSecret,
		LoginLimiter: loginLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init http server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("server listening", "addr", addr, "production", cfg.IsProduction())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
