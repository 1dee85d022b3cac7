package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "peerchat/internal/adapters/http"
	"peerchat/internal/app"
	"peerchat/internal/app/orch"
	"peerchat/internal/config"
	"peerchat/internal/domain"
	"peerchat/internal/identity"
	"peerchat/internal/protocol"
	"peerchat/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	directory := storage.NewDirectory(db)
	for _, seed := range cfg.Channels {
		info := storage.ChannelInfo{ServerID: seed.ServerID, ChannelID: seed.ChannelID, Name: seed.Name}
		if err := directory.Create(ctx, info); err != nil {
			log.Error().Err(err).Str("channel", seed.ChannelID).Msg("channel seed failed")
		}
	}

	provider := identity.NewTokenProvider(cfg.Secret)
	registry := app.NewRegistry(provider)
	presence := app.NewPresence(registry)
	ledger := storage.NewLedger(db, directory, cfg.MaxRetention)
	cast := app.NewBroadcaster(presence, registry)
	typing := app.NewTyping(cfg.TypingTTL, func(room domain.Room, typers []domain.UserID) {
		cast.Emit(room, protocol.TypingUpdate{
			Type:   protocol.EvtTypingUpdate,
			Room:   room,
			Typers: typers,
		})
	})
	go typing.Run(ctx, cfg.TypingSweep)

	o := &orch.Orchestrator{
		Registry:     registry,
		Presence:     presence,
		Typing:       typing,
		Signals:      app.NewSignaling(),
		Cast:         cast,
		Ledger:       ledger,
		Channels:     directory,
		HistoryLimit: cfg.MaxRetention,
	}

	r := router.SetupRouter(ctx, cfg, o, directory)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("peerchat server started")
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
