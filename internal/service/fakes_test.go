package service

import (
	"context"
	"time"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/types"
)

// Valid base58 addresses reused across tests.
const (
	testWallet = "So11111111111111111111111111111111111111112"
	testMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatText)
}

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		Phase1Deadline:      time.Second,
		Phase2Deadline:      time.Second,
		Phase3Deadline:      time.Second,
		PhasePacing:         0,
		TokenEnrichmentCap:  50,
		MetadataFallbackCap: 30,
		NFTCap:              30,
		HistoryLimit:        10,
		HistoryBatchSize:    3,
		HistoryBatchPacing:  0,
		DustLamports:        10_000,
	}
}

// fakeChain implements ChainReader with canned responses.
type fakeChain struct {
	balance    uint64
	balanceErr error

	tokenAccounts map[string][]chain.TokenAccount
	tokenErr      map[string]error

	programAccounts map[string][]chain.ProgramAccount
	programErr      error

	sigs    []chain.SignatureInfo
	sigsErr error

	txs   map[string]*chain.TransactionDetail
	txErr map[string]error
}

func (f *fakeChain) Balance(ctx context.Context, address string) (uint64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeChain) TokenAccountsByOwner(ctx context.Context, address, programID string) ([]chain.TokenAccount, error) {
	if err, ok := f.tokenErr[programID]; ok && err != nil {
		return nil, err
	}
	return f.tokenAccounts[programID], nil
}

func (f *fakeChain) ProgramAccounts(ctx context.Context, programID string, dataSize uint64, memcmpOffset uint64, memcmpBytes []byte) ([]chain.ProgramAccount, error) {
	if f.programErr != nil {
		return nil, f.programErr
	}
	return f.programAccounts[programID], nil
}

func (f *fakeChain) Signatures(ctx context.Context, address string, limit int) ([]chain.SignatureInfo, error) {
	if f.sigsErr != nil {
		return nil, f.sigsErr
	}
	if len(f.sigs) > limit {
		return f.sigs[:limit], nil
	}
	return f.sigs, nil
}

func (f *fakeChain) Transaction(ctx context.Context, signature string) (*chain.TransactionDetail, error) {
	if err, ok := f.txErr[signature]; ok && err != nil {
		return nil, err
	}
	return f.txs[signature], nil
}

// fakeAssets implements AssetIndex.
type fakeAssets struct {
	owned    []chain.Asset
	ownedErr error

	batch      map[string]chain.Asset
	batchErr   error
	batchCalls [][]string
}

func (f *fakeAssets) AssetsByOwner(ctx context.Context, address string, limit int) ([]chain.Asset, error) {
	if f.ownedErr != nil {
		return nil, f.ownedErr
	}
	if len(f.owned) > limit {
		return f.owned[:limit], nil
	}
	return f.owned, nil
}

func (f *fakeAssets) AssetBatch(ctx context.Context, ids []string) (map[string]chain.Asset, error) {
	f.batchCalls = append(f.batchCalls, ids)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.batch, nil
}

// fakePrices implements PriceResolver from a static table.
type fakePrices struct {
	data map[string]market.TokenMarketData
}

func (f *fakePrices) Resolve(ctx context.Context, mints []string) map[string]market.TokenMarketData {
	resolved := make(map[string]market.TokenMarketData)
	for _, mint := range mints {
		if data, ok := f.data[mint]; ok {
			resolved[mint] = data
		}
	}
	return resolved
}

func (f *fakePrices) ResolveOne(ctx context.Context, mint string) (market.TokenMarketData, bool) {
	data, ok := f.data[mint]
	return data, ok
}

// fakeNativePrice implements NativePriceSource.
type fakeNativePrice struct {
	price float64
	err   error
}

func (f *fakeNativePrice) SolPrice(ctx context.Context) (float64, error) {
	return f.price, f.err
}

// Orchestrator-level resolver fakes.

type fakeTokenResolver struct {
	holdings []types.TokenHolding
	err      error
}

func (f *fakeTokenResolver) Resolve(ctx context.Context, address string) ([]types.TokenHolding, error) {
	return f.holdings, f.err
}

type fakeNFTResolver struct {
	holdings []types.NFTHolding
	err      error
}

func (f *fakeNFTResolver) Resolve(ctx context.Context, address string) ([]types.NFTHolding, error) {
	return f.holdings, f.err
}

type fakeActivityResolver struct {
	records []types.ActivityRecord
	err     error
	points  []types.BalancePoint
}

func (f *fakeActivityResolver) RecentActivity(ctx context.Context, address string) ([]types.ActivityRecord, error) {
	return f.records, f.err
}

func (f *fakeActivityResolver) BalanceHistory(ctx context.Context, address string, currentLamports uint64) []types.BalancePoint {
	return f.points
}

type fakeStakingResolver struct {
	positions []types.StakedPosition
	err       error
}

func (f *fakeStakingResolver) Resolve(ctx context.Context, address string) ([]types.StakedPosition, error) {
	return f.positions, f.err
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
