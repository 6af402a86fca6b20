package service

import (
	"context"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/retry"
	"github.com/wallet-scanner/internal/types"
)

// NFTService resolves non-fungible holdings through the indexed-assets API,
// with a heuristic on-chain fallback when the index is unavailable.
type NFTService struct {
	chain  ChainReader
	assets AssetIndex
	cfg    *config.EngineConfig
	log    *logging.Logger
}

// NewNFTService creates a new NFT resolver.
func NewNFTService(chainReader ChainReader, assets AssetIndex, cfg *config.EngineConfig, log *logging.Logger) *NFTService {
	return &NFTService{
		chain:  chainReader,
		assets: assets,
		cfg:    cfg,
		log:    log,
	}
}

// Resolve returns up to the configured cap of NFT holdings. The two paths
// are never partially merged: either the index answers, or the heuristic
// result is used as-is.
func (s *NFTService) Resolve(ctx context.Context, address string) ([]types.NFTHolding, error) {
	var assets []chain.Asset
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		var err error
		assets, err = s.assets.AssetsByOwner(ctx, address, s.cfg.NFTCap)
		return err
	})
	if err == nil {
		holdings := make([]types.NFTHolding, 0, len(assets))
		for _, asset := range assets {
			if !asset.NonFungible() {
				continue
			}
			name := asset.Name
			if name == "" {
				name = shortLabel(asset.ID)
			}
			holdings = append(holdings, types.NFTHolding{
				Mint:        asset.ID,
				Name:        name,
				ImageURL:    asset.ImageURL,
				Collection:  asset.Collection,
				Description: asset.Description,
			})
			if len(holdings) == s.cfg.NFTCap {
				break
			}
		}
		return holdings, nil
	}

	// The indexed-assets extension is optional on public endpoints; any
	// failure falls back to detecting NFT-shaped token accounts directly.
	s.log.WithError(err).WithField("address", address).
		Debug("indexed-assets lookup failed, falling back to on-chain heuristic")
	return s.resolveHeuristic(ctx, address)
}

func (s *NFTService) resolveHeuristic(ctx context.Context, address string) ([]types.NFTHolding, error) {
	var accounts []chain.TokenAccount
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		var err error
		accounts, err = s.chain.TokenAccountsByOwner(ctx, address, chain.TokenProgramID)
		return err
	})
	if err != nil {
		return nil, err
	}

	holdings := make([]types.NFTHolding, 0, s.cfg.NFTCap)
	for _, acct := range accounts {
		if acct.RawAmount != 1 || acct.Decimals != 0 {
			continue
		}
		// Only a stub: richer metadata would need another off-chain lookup.
		holdings = append(holdings, types.NFTHolding{
			Mint: acct.Mint,
			Name: shortLabel(acct.Mint),
		})
		if len(holdings) == s.cfg.NFTCap {
			break
		}
	}
	return holdings, nil
}
