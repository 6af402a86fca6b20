// Package main provides a CLI that streams native balance changes for a
// wallet over the websocket subscription until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
)

func main() {
	address := flag.String("address", "", "wallet address to watch")
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: watch -address <base58 address>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	manager := chain.NewSubscriptionManager(cfg.RPC.WSEndpoint, logger)
	defer manager.Close()

	handle, err := manager.Subscribe(context.Background(), *address, func(address string, balanceSOL float64) {
		logger.WithFields(map[string]interface{}{
			"address": address,
			"balance": balanceSOL,
		}).Info("balance changed")
	})
	if err != nil {
		logger.WithError(err).Fatal("subscribe failed")
	}
	logger.WithField("address", *address).Info("watching for balance changes")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	manager.Unsubscribe(handle)
}
