package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SandeepCodez24/ipl-auction-server/internal/analytics"
	"github.com/SandeepCodez24/ipl-auction-server/internal/auction"
	"github.com/SandeepCodez24/ipl-auction-server/internal/broadcast"
	"github.com/SandeepCodez24/ipl-auction-server/internal/config"
	"github.com/SandeepCodez24/ipl-auction-server/internal/gateway"
	"github.com/SandeepCodez24/ipl-auction-server/internal/httpapi"
	"github.com/SandeepCodez24/ipl-auction-server/internal/hub"
	"github.com/SandeepCodez24/ipl-auction-server/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}
	setupLogging()

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Snapshot sink: Postgres when configured, in-memory otherwise.
	var sink auction.SnapshotSink
	if cfg.Store.Postgres {
		pg, err := store.Open(store.NewConfigFromEnv())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open snapshot store")
		}
		defer pg.Close()
		sink = pg
		log.Info().Msg("postgres snapshot store enabled")
	} else {
		sink = store.NewMemory()
	}

	// Analytics stream: events mirror onto NATS, the consumer aggregates.
	var mirror broadcast.Mirror
	var stats *analytics.Consumer
	if cfg.NATS.Enabled {
		nm, err := analytics.NewNATSMirror(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect analytics mirror")
		}
		defer nm.Close()
		mirror = nm

		stats = analytics.NewConsumer()
		if err := stats.Subscribe(nm.Conn()); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe analytics consumer")
		}
		defer stats.Unsubscribe()
		log.Info().Str("url", cfg.NATS.URL).Msg("analytics stream enabled")
	}

	bc := broadcast.New(mirror)
	rooms := hub.New(ctx, hub.Deps{
		Clock:     clockwork.NewRealClock(),
		Publisher: bc,
		Sink:      sink,
	})
	ws := gateway.NewHandler(rooms, bc, gateway.DefaultConfig())
	api := httpapi.New(rooms, bc, ws, stats, cfg.Rules())

	server := setupServer(cfg.Server.Port, api.Routes())

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("auction server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	rooms.Inbox() <- hub.ShutdownHub{}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
