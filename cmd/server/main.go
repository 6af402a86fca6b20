// Package main provides the API server entry point for the wallet scanner service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-scanner/internal/api"
	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/service"
	"github.com/wallet-scanner/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// The snapshot cache is a serving-layer optimization; the engine runs
	// fine without Redis.
	var snapshotCache *storage.SnapshotCache
	redisCache, err := storage.NewRedisCache(&cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, serving without snapshot cache")
	} else {
		defer redisCache.Close()
		snapshotCache = storage.NewSnapshotCache(redisCache, cfg.Cache.SnapshotTTL, logger)
	}

	// Chain and market clients
	chainClient := chain.NewClient(cfg.RPC.Endpoint, cfg.RPC.RequestsPerSecond)
	priceCache := market.NewPriceCache(cfg.Market.BaseURL, cfg.Market.BatchSize, cfg.Market.CacheTTL, logger)
	nativePrice := market.NewNativePriceClient(cfg.NativePrice.BaseURL, cfg.NativePrice.CacheTTL)

	// Resolvers and the orchestrator
	tokenService := service.NewTokenService(chainClient, priceCache, chainClient, &cfg.Engine, logger)
	nftService := service.NewNFTService(chainClient, chainClient, &cfg.Engine, logger)
	historyService := service.NewHistoryService(chainClient, &cfg.Engine, logger)
	stakingService := service.NewStakingService(chainClient, priceCache, &cfg.Staking, logger)
	snapshotService := service.NewSnapshotService(
		chainClient,
		nativePrice,
		priceCache,
		tokenService,
		nftService,
		historyService,
		stakingService,
		&cfg.Engine,
		logger,
	)

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}, snapshotService, snapshotCache, logger)

	// Start the server in a goroutine so shutdown signals can be handled
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.WithError(err).Fatal("API server failed")
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
	logger.Info("Server stopped")
}
