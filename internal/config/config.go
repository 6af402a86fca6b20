// Package config provides configuration management for the wallet scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	RPC         RPCConfig
	Market      MarketConfig
	NativePrice NativePriceConfig
	Engine      EngineConfig
	Staking     StakingConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// RPCConfig holds the blockchain JSON-RPC endpoint configuration
type RPCConfig struct {
	Endpoint          string
	WSEndpoint        string
	RequestsPerSecond int
}

// MarketConfig holds the market-data aggregation provider configuration
type MarketConfig struct {
	BaseURL   string
	BatchSize int
	CacheTTL  time.Duration
}

// NativePriceConfig holds the native asset price API configuration
type NativePriceConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

// EngineConfig holds the aggregation engine tuning knobs
type EngineConfig struct {
	Phase1Deadline      time.Duration // balance + native price
	Phase2Deadline      time.Duration // token scan, longer for large holders
	Phase3Deadline      time.Duration // each parallel sub-fetch
	PhasePacing         time.Duration // delay between sequential phases/scans
	TokenEnrichmentCap  int           // top-N mints sent for price enrichment
	MetadataFallbackCap int           // max unresolved mints sent to the on-chain fallback
	NFTCap              int
	HistoryLimit        int
	HistoryBatchSize    int
	HistoryBatchPacing  time.Duration
	DustLamports        uint64 // native deltas at or below this are not transfers
}

// StakingConfig holds the staking program integration configuration.
// Empty program IDs disable the staking resolver.
type StakingConfig struct {
	StakeProgram string
	VaultProgram string
	StakedMint   string
	Symbol       string
	Name         string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds the serving-layer snapshot cache configuration
type CacheConfig struct {
	SnapshotTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		RPC: RPCConfig{
			Endpoint:          getEnv("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
			WSEndpoint:        getEnv("SOLANA_WS_ENDPOINT", "wss://api.mainnet-beta.solana.com"),
			RequestsPerSecond: getEnvAsInt("SOLANA_RPC_RPS", 8),
		},
		Market: MarketConfig{
			BaseURL:   getEnv("MARKET_API_BASE_URL", "https://api.dexscreener.com"),
			BatchSize: getEnvAsInt("MARKET_BATCH_SIZE", 30),
			CacheTTL:  getEnvAsDuration("MARKET_CACHE_TTL", 5*time.Minute),
		},
		NativePrice: NativePriceConfig{
			BaseURL:  getEnv("NATIVE_PRICE_BASE_URL", "https://api.coingecko.com/api/v3"),
			CacheTTL: getEnvAsDuration("NATIVE_PRICE_CACHE_TTL", time.Minute),
		},
		Engine: EngineConfig{
			Phase1Deadline:      getEnvAsDuration("ENGINE_PHASE1_DEADLINE", 15*time.Second),
			Phase2Deadline:      getEnvAsDuration("ENGINE_PHASE2_DEADLINE", 30*time.Second),
			Phase3Deadline:      getEnvAsDuration("ENGINE_PHASE3_DEADLINE", 15*time.Second),
			PhasePacing:         getEnvAsDuration("ENGINE_PHASE_PACING", 500*time.Millisecond),
			TokenEnrichmentCap:  getEnvAsInt("ENGINE_TOKEN_ENRICHMENT_CAP", 50),
			MetadataFallbackCap: getEnvAsInt("ENGINE_METADATA_FALLBACK_CAP", 30),
			NFTCap:              getEnvAsInt("ENGINE_NFT_CAP", 30),
			HistoryLimit:        getEnvAsInt("ENGINE_HISTORY_LIMIT", 10),
			HistoryBatchSize:    getEnvAsInt("ENGINE_HISTORY_BATCH_SIZE", 3),
			HistoryBatchPacing:  getEnvAsDuration("ENGINE_HISTORY_BATCH_PACING", 400*time.Millisecond),
			DustLamports:        getEnvAsUint64("ENGINE_DUST_LAMPORTS", 10_000),
		},
		Staking: StakingConfig{
			StakeProgram: getEnv("STAKING_PROGRAM_ID", ""),
			VaultProgram: getEnv("STAKING_VAULT_PROGRAM_ID", ""),
			StakedMint:   getEnv("STAKING_MINT", ""),
			Symbol:       getEnv("STAKING_SYMBOL", "stSOL"),
			Name:         getEnv("STAKING_NAME", "Staked SOL"),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
		},
		Cache: CacheConfig{
			SnapshotTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsUint64 gets an environment variable as a uint64 with a default value
func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
