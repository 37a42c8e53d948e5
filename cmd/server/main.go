package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/okonek/matchd/internal/adapters/http"
	ws "github.com/okonek/matchd/internal/adapters/signal"
	"github.com/okonek/matchd/internal/app"
	"github.com/okonek/matchd/internal/config"
	"github.com/okonek/matchd/internal/core"
	"github.com/okonek/matchd/internal/store"
	"github.com/okonek/matchd/internal/telemetry"
)

// gameStore is the counter and the registry backed by one store instance.
type gameStore interface {
	core.CounterStore
	core.Registry
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var st gameStore
	if cfg.Mode == "local" {
		st = store.NewMemory(cfg.Capacity)
	} else {
		opts := &redis.Options{Addr: cfg.RedisAddr}
		if cfg.RedisURL != "" {
			if opts, err = redis.ParseURL(cfg.RedisURL); err != nil {
				log.Fatal().Err(err).Msg("bad redis url")
			}
		}
		st = store.NewRedis(redis.NewClient(opts), cfg.Capacity)
	}
	// Cannot admit players without a seeded generation; boot-time store
	// unavailability is fatal, runtime unavailability is not.
	if err := st.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}

	var writer telemetry.Writer = telemetry.LogWriter{}
	if cfg.TelemetryURL != "" {
		writer = telemetry.NewFirebaseWriter(cfg.TelemetryURL, cfg.TelemetryAuth)
	}
	sink := telemetry.NewSink(writer, cfg.TelemetryWorkers, cfg.TelemetryQueue)
	go sink.Run(ctx)

	// The controller is the matchmaker's Sender and vice versa the
	// matchmaker handles the controller's joins, hence the two-step wiring.
	ctl := ws.NewGameWSController(sink, ws.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		JoinLimit:  cfg.JoinLimit,
		JoinWindow: cfg.JoinWindow,
	})
	match := &app.Matchmaker{Store: st, Rooms: st, Send: ctl, Audit: sink}
	events := &app.EventRouter{Rooms: st, Send: ctl, Audit: sink, TrustClaimedRoom: cfg.TrustClaimedRoom}
	ctl.Bind(match, events)

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("capacity", cfg.Capacity).Msg("matchd server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
