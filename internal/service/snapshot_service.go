package service

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/wallet-scanner/internal/config"
	apperrors "github.com/wallet-scanner/internal/errors"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/retry"
	"github.com/wallet-scanner/internal/types"
)

// SnapshotService orchestrates the resolvers into one wallet snapshot. The
// run is phased: identity data first (fatal), then token holdings, then the
// remaining sub-fetches in parallel. Only phase one can fail the snapshot;
// everything after it degrades to empty sections.
type SnapshotService struct {
	chain       ChainReader
	nativePrice NativePriceSource
	prices      PriceResolver
	tokens      TokenResolver
	nfts        NFTResolver
	activity    ActivityResolver
	staking     StakingResolver
	cfg         *config.EngineConfig
	log         *logging.Logger
}

// NewSnapshotService creates the snapshot orchestrator.
func NewSnapshotService(
	chainReader ChainReader,
	nativePrice NativePriceSource,
	prices PriceResolver,
	tokens TokenResolver,
	nfts NFTResolver,
	activity ActivityResolver,
	staking StakingResolver,
	cfg *config.EngineConfig,
	log *logging.Logger,
) *SnapshotService {
	return &SnapshotService{
		chain:       chainReader,
		nativePrice: nativePrice,
		prices:      prices,
		tokens:      tokens,
		nfts:        nfts,
		activity:    activity,
		staking:     staking,
		cfg:         cfg,
		log:         log,
	}
}

// phase1Result carries the fatal identity data of a snapshot run.
type phase1Result struct {
	lamports uint64
	solPrice float64
}

// FetchWalletSnapshot runs the full aggregation for one address.
func (s *SnapshotService) FetchWalletSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return nil, apperrors.NewInvalidAddressError(address)
	}
	log := s.log.WithField("address", address)
	started := time.Now()

	// Phase 1: native balance and SOL price. Without these nothing else in
	// the snapshot can be valued, so either failure is fatal.
	p1, err := retry.WithDeadline(ctx, s.cfg.Phase1Deadline, "phase1", func(ctx context.Context) (phase1Result, error) {
		return s.fetchPhase1(ctx, address)
	})
	if err != nil {
		log.WithError(err).Error("snapshot aborted in identity phase")
		return nil, err
	}

	if err := retry.Pace(ctx, s.cfg.PhasePacing); err != nil {
		return nil, err
	}

	// Phase 2: token holdings. Failure degrades to an empty token list.
	tokens, err := retry.WithDeadline(ctx, s.cfg.Phase2Deadline, "tokens", func(ctx context.Context) ([]types.TokenHolding, error) {
		return s.tokens.Resolve(ctx, address)
	})
	if err != nil {
		log.WithError(err).Warn("token holdings unavailable, snapshot degrades to empty token list")
		tokens = nil
	}

	if err := retry.Pace(ctx, s.cfg.PhasePacing); err != nil {
		return nil, err
	}

	// Phase 3: independent sub-fetches in parallel, each under its own
	// deadline. All of them are waited for; none of them can fail the run.
	var (
		wg      sync.WaitGroup
		nfts    []types.NFTHolding
		history []types.ActivityRecord
		balHist []types.BalancePoint
		staked  []types.StakedPosition
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		result, err := retry.WithDeadline(ctx, s.cfg.Phase3Deadline, "nfts", func(ctx context.Context) ([]types.NFTHolding, error) {
			return s.nfts.Resolve(ctx, address)
		})
		if err != nil {
			log.WithError(err).Warn("nft holdings unavailable")
			return
		}
		nfts = result
	}()
	go func() {
		defer wg.Done()
		result, err := retry.WithDeadline(ctx, s.cfg.Phase3Deadline, "history", func(ctx context.Context) ([]types.ActivityRecord, error) {
			return s.activity.RecentActivity(ctx, address)
		})
		if err != nil {
			log.WithError(err).Warn("transaction history unavailable")
			return
		}
		history = result
	}()
	go func() {
		defer wg.Done()
		result, err := retry.WithDeadline(ctx, s.cfg.Phase3Deadline, "balance-history", func(ctx context.Context) ([]types.BalancePoint, error) {
			return s.activity.BalanceHistory(ctx, address, p1.lamports), nil
		})
		if err != nil {
			log.WithError(err).Warn("balance history unavailable")
			return
		}
		balHist = result
	}()
	go func() {
		defer wg.Done()
		result, err := retry.WithDeadline(ctx, s.cfg.Phase3Deadline, "staking", func(ctx context.Context) ([]types.StakedPosition, error) {
			return s.staking.Resolve(ctx, address)
		})
		if err != nil {
			log.WithError(err).Warn("staked positions unavailable")
			return
		}
		staked = result
	}()
	wg.Wait()

	snapshot := s.assemble(address, p1, tokens, nfts, history, balHist, staked)
	log.WithFields(map[string]interface{}{
		"tokens":      len(snapshot.Tokens),
		"nfts":        len(snapshot.NFTs),
		"activity":    len(snapshot.Transactions),
		"staked":      len(snapshot.StakedTokens),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("wallet snapshot assembled")
	return snapshot, nil
}

// fetchPhase1 resolves the balance and the native price concurrently; both
// are required.
func (s *SnapshotService) fetchPhase1(ctx context.Context, address string) (phase1Result, error) {
	var (
		result     phase1Result
		balanceErr error
		priceErr   error
		wg         sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		balanceErr = retry.WithRetry(ctx, nil, func(ctx context.Context) error {
			var err error
			result.lamports, err = s.chain.Balance(ctx, address)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		result.solPrice, priceErr = s.nativePrice.SolPrice(ctx)
	}()
	wg.Wait()

	if balanceErr != nil {
		return result, balanceErr
	}
	if priceErr != nil {
		return result, priceErr
	}
	return result, nil
}

// NativeBalance resolves only the native balance and its USD value, for the
// lightweight balance endpoint.
func (s *SnapshotService) NativeBalance(ctx context.Context, address string) (*types.WalletSnapshot, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return nil, apperrors.NewInvalidAddressError(address)
	}

	p1, err := retry.WithDeadline(ctx, s.cfg.Phase1Deadline, "phase1", func(ctx context.Context) (phase1Result, error) {
		return s.fetchPhase1(ctx, address)
	})
	if err != nil {
		return nil, err
	}

	balanceSOL := float64(p1.lamports) / types.LamportsPerSol
	return &types.WalletSnapshot{
		Address:       address,
		BalanceSOL:    balanceSOL,
		SolPriceUSD:   p1.solPrice,
		TotalValueUSD: balanceSOL * p1.solPrice,
		CapturedAt:    time.Now().UTC(),
	}, nil
}

func (s *SnapshotService) assemble(
	address string,
	p1 phase1Result,
	tokens []types.TokenHolding,
	nfts []types.NFTHolding,
	history []types.ActivityRecord,
	balHist []types.BalancePoint,
	staked []types.StakedPosition,
) *types.WalletSnapshot {
	balanceSOL := float64(p1.lamports) / types.LamportsPerSol

	total := balanceSOL * p1.solPrice
	for _, holding := range tokens {
		if holding.ValueUSD != nil {
			total += *holding.ValueUSD
		}
	}
	for _, position := range staked {
		if position.ValueUSD != nil {
			total += *position.ValueUSD
		}
	}

	if tokens == nil {
		tokens = []types.TokenHolding{}
	}
	if nfts == nil {
		nfts = []types.NFTHolding{}
	}
	if history == nil {
		history = []types.ActivityRecord{}
	}
	if staked == nil {
		staked = []types.StakedPosition{}
	}
	if len(balHist) == 0 {
		balHist = []types.BalancePoint{{Time: time.Now(), BalanceSOL: balanceSOL}}
	}

	return &types.WalletSnapshot{
		Address:        address,
		BalanceSOL:     balanceSOL,
		SolPriceUSD:    p1.solPrice,
		TotalValueUSD:  total,
		Tokens:         tokens,
		NFTs:           nfts,
		Transactions:   history,
		StakedTokens:   staked,
		BalanceHistory: balHist,
		CapturedAt:     time.Now().UTC(),
	}
}

// TokenDetail resolves one mint's market data for the token detail endpoint.
func (s *SnapshotService) TokenDetail(ctx context.Context, mint string) (*market.TokenMarketData, error) {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return nil, apperrors.NewInvalidAddressError(mint)
	}
	data, ok := s.prices.ResolveOne(ctx, mint)
	if !ok {
		return nil, apperrors.NewNotFoundError("token", mint)
	}
	return &data, nil
}
