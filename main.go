// Package main is the entry point for the trading backend: it wires the
// config, vault, store, risk, event bus, and engine manager singletons and
// serves the HTTP control plane.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantforge/hft/api"
	"github.com/quantforge/hft/config"
	"github.com/quantforge/hft/engine"
	"github.com/quantforge/hft/notifications"
	"github.com/quantforge/hft/realtime"
	"github.com/quantforge/hft/risk"
	"github.com/quantforge/hft/store"
	"github.com/quantforge/hft/vault"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("starting quantforge trading backend")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsLive() {
		log.Warn().Msg("LIVE TRADING MODE: real exchange orders will be placed")
	} else {
		log.Info().Msg("dry-run mode: engines without credentials default to the paper adapter")
	}

	db, err := store.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	ds := store.NewSQLStore(db)

	var kv *vault.KeyVault
	if cfg.VaultMasterKey != "" {
		keyBytes, err := decodeMasterKey(cfg.VaultMasterKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to decode VAULT_MASTER_KEY")
		}
		kv, err = vault.New(keyBytes)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize key vault")
		}
	} else {
		log.Warn().Msg("no VAULT_MASTER_KEY configured: tenants must use the paper adapter")
	}

	riskMgr := risk.NewManager()
	defer riskMgr.Stop()

	bus := realtime.NewEventBus()
	notifier := notifications.NewManager(ds, bus)

	manager := engine.NewManager(kv, riskMgr, ds, bus)

	router := api.NewRouter(cfg, manager, ds, notifier, bus)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error tearing down tenant engines")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited gracefully")
}

func decodeMasterKey(encoded string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(key) == 32 {
		return key, nil
	}
	return nil, fmt.Errorf("VAULT_MASTER_KEY must be 32 bytes, base64-encoded")
}
