package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"linehaul/board"
	"linehaul/engine"
	"linehaul/logging"
	"linehaul/messaging"
	"linehaul/metrics"
	"linehaul/telematics"
	"linehaul/www"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch API, outbox drainer and stop consumer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().Str("version", Version).Msg("linehaul: starting")

	db, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	redisUp := redisClient.Ping(pingCtx).Err() == nil
	cancel()
	var boardCache *board.RedisStore
	if redisUp {
		boardCache = board.NewRedisStore(redisClient)
		log.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	} else {
		log.Warn().Str("addr", cfg.Redis.Address).Msg("redis not available, running without cache")
	}
	boards := board.NewManager(db, boardCache, logging.Component(log, "board"))

	// Messaging
	mc := messaging.NewClient(&cfg.Messaging, logging.Component(log, "messaging"))
	if err := mc.Connect(); err != nil {
		log.Warn().Err(err).Str("backend", cfg.Messaging.Backend).Msg("messaging connect failed")
	} else {
		log.Info().Str("backend", cfg.Messaging.Backend).Msg("messaging connected")
	}
	defer mc.Close()

	// Telematics
	var positioner engine.Positioner
	if cfg.Telematics.Enabled {
		var sessions telematics.SessionCache = telematics.NewMemorySessionCache()
		if redisUp {
			sessions = telematics.NewRedisSessionCache(redisClient)
		}
		tc, err := telematics.NewClient(cfg.Telematics, sessions, logging.Component(log, "telematics"))
		if err != nil {
			return fmt.Errorf("telematics: %w", err)
		}
		positioner = tc
		log.Info().Str("base_url", cfg.Telematics.BaseURL).Msg("telematics enabled")
	}

	collectors, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		DB:         db,
		Board:      boards,
		MsgClient:  mc,
		Telematics: positioner,
		Metrics:    collectors,
		Logger:     log,
	})
	eng.Start()
	defer eng.Stop()

	handler, stopWeb := www.NewRouter(eng, collectors.Handler(), logging.Component(log, "www"))
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("web server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Msg("linehaul: ready")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web server: %w", err)
		}
	}

	log.Info().Msg("linehaul: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("web server shutdown")
	}
	return nil
}
