// SPDX-License-Identifier: MIT

// The trackd daemon: waits for storage and its schema, then serves the
// collector API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trackdhq/trackd/internal/api"
	"github.com/trackdhq/trackd/internal/cache"
	"github.com/trackdhq/trackd/internal/config"
	"github.com/trackdhq/trackd/internal/log"
	"github.com/trackdhq/trackd/internal/storage"
	"github.com/trackdhq/trackd/internal/store"
	"github.com/trackdhq/trackd/internal/synchronizer"
	"github.com/trackdhq/trackd/internal/tracker"
)

const (
	connectionTries = 10
	connectionWait  = 5 * time.Second
	schemaTries     = 10
	schemaWait      = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Configure(log.Config{Service: "trackd"})
		base := log.Base()
		base.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "trackd"})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := storage.NewOpenSearchDriver(cfg.Elastic.Host, cfg.Elastic.QueryTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not build storage driver")
	}

	// The daemon is useless without storage and its schema; exit when either
	// never shows up.
	if err := storage.WaitForConnection(ctx, driver, connectionTries, connectionWait); err != nil {
		logger.Error().Err(err).Msg("storage unreachable, exiting")
		os.Exit(1)
	}
	installer := storage.NewInstaller(driver, cfg.InstancePrefix)
	if err := storage.WaitForSchema(ctx, installer, schemaTries, schemaWait); err != nil {
		logger.Error().Err(err).Msg("schema incomplete, exiting")
		os.Exit(1)
	}

	redisClient := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("redis close failed")
		}
	}()

	resolver := storage.Resolver{Prefix: cfg.InstancePrefix, Production: cfg.Production}
	stores := store.New(driver, resolver)
	redisCache := cache.NewRedisCache(redisClient)
	profileTracks := synchronizer.New(redisClient, cfg.SyncProfileTracksWait, cfg.SyncProfileTracksMaxRepeats)

	trk := tracker.New(stores, redisCache, profileTracks, tracker.Config{
		TrackDebug:  cfg.TrackDebug,
		SessionTTL:  cfg.Cache.Session,
		SourceTTL:   cfg.Cache.Source,
		EventTagTTL: cfg.Cache.EventTag,
		FlowTTL:     cfg.Cache.Flow,
		SegmentTTL:  cfg.Cache.Segment,
		RuleTTL:     cfg.Cache.Rule,
	})

	server := api.New(trk, driver, api.Config{
		AllowedBridges: cfg.AllowedBridges,
		RateLimit:      1200,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("addr", cfg.ListenAddr).Bool("production", cfg.Production).Msg("trackd listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("trackd stopped")
}
