package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"whatsapp-relay-bot/api"
	"whatsapp-relay-bot/config"
	"whatsapp-relay-bot/relay"
	"whatsapp-relay-bot/whatsapp"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
	clientLog := waLog.Stdout("Client", strings.ToUpper(level.String()), true)

	log.Info().Str("session", cfg.SessionName).Msg("Starting WhatsApp relay bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The session store occasionally needs a moment after an unclean exit
	// (WAL recovery), so the connect is retried with backoff.
	var container *sqlstore.Container
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxElapsedTime = 25 * time.Second
	err = backoff.Retry(func() error {
		var cerr error
		container, cerr = sqlstore.New(ctx, "sqlite", cfg.DBPath, clientLog)
		if cerr != nil {
			log.Warn().Err(cerr).Msg("Session store connection failed, retrying")
		}
		return cerr
	}, bo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}

	lifecycle := whatsapp.NewLifecycle(container, clientLog, log)
	keepalive := whatsapp.NewKeepAlive(cfg.KeepAliveInterval, lifecycle.Current, log)
	coordinator := whatsapp.NewCoordinator(lifecycle, keepalive, cfg.RestartTimeout, log)
	keepalive.BindRestart(coordinator.RequestAsync)
	lifecycle.BindRestart(coordinator.RequestAsync)

	pipeline := relay.NewPipeline(cfg.BackendURL, lifecycle.Current, log)
	dispatcher := relay.NewDispatcher(pipeline, 256, log)
	lifecycle.BindMessages(dispatcher.Enqueue)
	go dispatcher.Run(ctx)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(lifecycle.Current, log).Handler(),
	}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Command API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Command API server failed")
		}
	}()

	// The first client generation goes through the coordinator so startup
	// and recovery share one code path.
	if _, err := coordinator.Restart(ctx, "startup"); err != nil {
		log.Fatal().Err(err).Msg("Initial client start failed")
	}

	<-ctx.Done()
	log.Info().Msg("Interrupt received, shutting down")

	keepalive.Stop()
	if handle, ok := lifecycle.Current(); ok {
		_ = handle.Destroy(context.Background())
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = container.Close()
}
