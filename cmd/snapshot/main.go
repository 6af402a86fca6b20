// Package main provides a one-shot CLI that aggregates and prints a wallet
// snapshot as JSON, useful for smoke testing an RPC endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/service"
)

func main() {
	address := flag.String("address", "", "wallet address to snapshot")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall run timeout")
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: snapshot -address <base58 address>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.SetOutput(os.Stderr)

	chainClient := chain.NewClient(cfg.RPC.Endpoint, cfg.RPC.RequestsPerSecond)
	priceCache := market.NewPriceCache(cfg.Market.BaseURL, cfg.Market.BatchSize, cfg.Market.CacheTTL, logger)
	nativePrice := market.NewNativePriceClient(cfg.NativePrice.BaseURL, cfg.NativePrice.CacheTTL)

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	snapshot, err := snapshotService.FetchWalletSnapshot(ctx, *address)
	if err != nil {
		logger.WithError(err).Fatal("snapshot failed")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snapshot); err != nil {
		logger.WithError(err).Fatal("encode snapshot")
	}
}
