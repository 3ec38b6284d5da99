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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/WatchParty/internal/adapters/http"
	"github.com/dkeye/WatchParty/internal/adapters/persist"
	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/app/orch"
	"github.com/dkeye/WatchParty/internal/config"
	"github.com/dkeye/WatchParty/internal/core"
)

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func openSink(cfg config.PersistConfig) (persist.Sink, func(), error) {
	switch cfg.Backend {
	case "file":
		s, err := persist.NewFileSink(cfg.Path)
		return s, func() {}, err
	case "redis":
		s, err := persist.NewRedisSink(persist.RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "sql":
		s, err := persist.NewSQLSink(persist.SQLConfig{
			Driver: cfg.SQLDriver,
			DSN:    cfg.SQLDSN,
			Key:    cfg.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, func() {}, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the config says otherwise.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Log)

	rooms := core.NewRoomStore(cfg.Rooms.MaxRooms, nil)
	guard := app.NewGuard(app.GuardConfig{
		Window:   cfg.Guard.Window,
		MaxJoins: cfg.Guard.MaxJoins,
		MaxChats: cfg.Guard.MaxChats,
		BlockFor: cfg.Guard.BlockFor,
	}, nil)

	sink, closeSink, err := openSink(cfg.Persist)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Persist.Backend).Msg("failed to open room storage")
	}
	defer closeSink()

	var persister *persist.Persister
	var notifier orch.Notifier
	if sink != nil {
		persister = persist.NewPersister(sink, rooms, cfg.Persist.Debounce)
		persister.Load(ctx)
		notifier = persister
	}

	o := orch.New(app.NewRegistry(), rooms, guard, app.PolicyByName(cfg.Policy.Backpressure), notifier, orch.Options{
		IdleTTL:       cfg.Rooms.IdleTTL,
		JanitorPeriod: cfg.Rooms.JanitorPeriod,
	})

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("persist", cfg.Persist.Backend).Msg("WatchParty server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	g.Go(func() error { return o.Run(gctx) })
	if persister != nil {
		g.Go(func() error { return persister.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		cancel()
		closeSink()
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
