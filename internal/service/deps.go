// Package service implements the wallet-data aggregation engine: the token,
// NFT, history and staking resolvers, and the orchestrator that sequences
// them into one consistent snapshot.
package service

import (
	"context"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/types"
)

// Dependency interfaces for injection and testing. *chain.Client and the
// market clients satisfy these in production.

// ChainReader is the JSON-RPC facade consumed by the resolvers.
type ChainReader interface {
	Balance(ctx context.Context, address string) (uint64, error)
	TokenAccountsByOwner(ctx context.Context, address, programID string) ([]chain.TokenAccount, error)
	ProgramAccounts(ctx context.Context, programID string, dataSize uint64, memcmpOffset uint64, memcmpBytes []byte) ([]chain.ProgramAccount, error)
	Signatures(ctx context.Context, address string, limit int) ([]chain.SignatureInfo, error)
	Transaction(ctx context.Context, signature string) (*chain.TransactionDetail, error)
}

// AssetIndex is the indexed-assets (DAS) extension consumed by the NFT
// resolver and the token metadata fallback.
type AssetIndex interface {
	AssetsByOwner(ctx context.Context, address string, limit int) ([]chain.Asset, error)
	AssetBatch(ctx context.Context, ids []string) (map[string]chain.Asset, error)
}

// PriceResolver is the batched token price/metadata cache.
type PriceResolver interface {
	Resolve(ctx context.Context, mints []string) map[string]market.TokenMarketData
	ResolveOne(ctx context.Context, mint string) (market.TokenMarketData, bool)
}

// NativePriceSource resolves the native asset's USD price.
type NativePriceSource interface {
	SolPrice(ctx context.Context) (float64, error)
}

// Resolver interfaces consumed by the orchestrator.

// TokenResolver resolves ranked fungible holdings.
type TokenResolver interface {
	Resolve(ctx context.Context, address string) ([]types.TokenHolding, error)
}

// NFTResolver resolves non-fungible holdings.
type NFTResolver interface {
	Resolve(ctx context.Context, address string) ([]types.NFTHolding, error)
}

// ActivityResolver resolves recent activity and the balance history series.
type ActivityResolver interface {
	RecentActivity(ctx context.Context, address string) ([]types.ActivityRecord, error)
	BalanceHistory(ctx context.Context, address string, currentLamports uint64) []types.BalancePoint
}

// StakingResolver detects and values staked positions.
type StakingResolver interface {
	Resolve(ctx context.Context, address string) ([]types.StakedPosition, error)
}

// shortLabel synthesizes a display label from an identifier when no richer
// metadata could be resolved.
func shortLabel(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
