package service

import (
	"context"
	"sort"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/retry"
	"github.com/wallet-scanner/internal/types"
)

// TokenService enumerates, filters, ranks, caps and enriches the wallet's
// fungible token holdings.
type TokenService struct {
	chain  ChainReader
	prices PriceResolver
	assets AssetIndex
	cfg    *config.EngineConfig
	log    *logging.Logger
}

// NewTokenService creates a new token balance resolver.
func NewTokenService(chainReader ChainReader, prices PriceResolver, assets AssetIndex, cfg *config.EngineConfig, log *logging.Logger) *TokenService {
	return &TokenService{
		chain:  chainReader,
		prices: prices,
		assets: assets,
		cfg:    cfg,
		log:    log,
	}
}

// Resolve returns the wallet's token holdings ranked by USD value.
// A failed account scan is fatal; enrichment failures degrade individual
// holdings to unverified/unpriced instead.
func (s *TokenService) Resolve(ctx context.Context, address string) ([]types.TokenHolding, error) {
	// The two token program namespaces are scanned sequentially on purpose:
	// running them in parallel doubles the rate-limit pressure on one
	// provider for no latency win that matters here.
	accounts, err := s.scanProgram(ctx, address, chain.TokenProgramID)
	if err != nil {
		return nil, err
	}

	if err := retry.Pace(ctx, s.cfg.PhasePacing); err != nil {
		return nil, err
	}

	accounts2022, err := s.scanProgram(ctx, address, chain.Token2022ProgramID)
	if err != nil {
		return nil, err
	}
	accounts = append(accounts, accounts2022...)

	candidates := make([]chain.TokenAccount, 0, len(accounts))
	for _, acct := range accounts {
		if acct.RawAmount == 0 {
			continue
		}
		// Amount exactly 1 with zero decimals is an NFT placeholder, handled
		// by the NFT resolver.
		if acct.RawAmount == 1 && acct.Decimals == 0 {
			continue
		}
		candidates = append(candidates, acct)
	}

	// Large holders can own thousands of token accounts; enrichment cost is
	// the bottleneck, so only the top holdings by UI amount are enriched.
	sort.Slice(candidates, func(i, j int) bool {
		return types.UIAmountFor(candidates[i].RawAmount, candidates[i].Decimals) >
			types.UIAmountFor(candidates[j].RawAmount, candidates[j].Decimals)
	})
	if len(candidates) > s.cfg.TokenEnrichmentCap {
		candidates = candidates[:s.cfg.TokenEnrichmentCap]
	}

	mints := make([]string, 0, len(candidates))
	for _, acct := range candidates {
		mints = append(mints, acct.Mint)
	}
	priced := s.prices.Resolve(ctx, mints)

	var unresolved []string
	for _, mint := range mints {
		if _, ok := priced[mint]; !ok {
			unresolved = append(unresolved, mint)
		}
	}
	if len(unresolved) > s.cfg.MetadataFallbackCap {
		unresolved = unresolved[:s.cfg.MetadataFallbackCap]
	}

	fallback := map[string]chain.Asset{}
	if len(unresolved) > 0 {
		assets, err := s.assets.AssetBatch(ctx, unresolved)
		if err != nil {
			s.log.WithError(err).WithField("mints", len(unresolved)).
				Warn("on-chain metadata fallback failed, holdings degrade to short labels")
		} else {
			fallback = assets
		}
	}

	holdings := make([]types.TokenHolding, 0, len(candidates))
	for _, acct := range candidates {
		holdings = append(holdings, buildHolding(acct, priced, fallback))
	}

	sortHoldings(holdings)
	return holdings, nil
}

func (s *TokenService) scanProgram(ctx context.Context, address, programID string) ([]chain.TokenAccount, error) {
	var accounts []chain.TokenAccount
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		var err error
		accounts, err = s.chain.TokenAccountsByOwner(ctx, address, programID)
		return err
	})
	return accounts, err
}

func buildHolding(acct chain.TokenAccount, priced map[string]market.TokenMarketData, fallback map[string]chain.Asset) types.TokenHolding {
	holding := types.TokenHolding{
		Mint:      acct.Mint,
		RawAmount: acct.RawAmount,
		Decimals:  acct.Decimals,
		UIAmount:  types.UIAmountFor(acct.RawAmount, acct.Decimals),
	}

	if data, ok := priced[acct.Mint]; ok {
		holding.Symbol = data.Symbol
		holding.Name = data.Name
		holding.LogoURI = data.LogoURI
		price := data.PriceUSD
		value := holding.UIAmount * price
		change := data.Change24h
		holding.PriceUSD = &price
		holding.ValueUSD = &value
		holding.Change24h = &change
		// Verified means only that the price provider recognized the mint;
		// its absence says nothing about legitimacy.
		holding.Verified = true
		return holding
	}

	if asset, ok := fallback[acct.Mint]; ok {
		holding.Symbol = asset.Symbol
		holding.Name = asset.Name
		holding.LogoURI = asset.ImageURL
	}
	if holding.Symbol == "" {
		holding.Symbol = shortLabel(acct.Mint)
	}
	if holding.Name == "" {
		holding.Name = holding.Symbol
	}
	return holding
}

// sortHoldings orders holdings by descending USD value, falling back to
// descending UI amount when value is absent or equal.
func sortHoldings(holdings []types.TokenHolding) {
	sort.SliceStable(holdings, func(i, j int) bool {
		vi, vj := holdingValue(holdings[i]), holdingValue(holdings[j])
		if vi != vj {
			return vi > vj
		}
		return holdings[i].UIAmount > holdings[j].UIAmount
	})
}

func holdingValue(h types.TokenHolding) float64 {
	if h.ValueUSD == nil {
		return 0
	}
	return *h.ValueUSD
}
