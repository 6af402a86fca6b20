package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wallet-scanner/internal/errors"
	"github.com/wallet-scanner/internal/market"
	"github.com/wallet-scanner/internal/types"
)

func newTestSnapshotService(
	chainReader *fakeChain,
	native *fakeNativePrice,
	tokens TokenResolver,
	nfts NFTResolver,
	activity ActivityResolver,
	staking StakingResolver,
) *SnapshotService {
	return NewSnapshotService(
		chainReader,
		native,
		&fakePrices{},
		tokens,
		nfts,
		activity,
		staking,
		testEngineConfig(),
		testLogger(),
	)
}

func TestFetchWalletSnapshotAggregatesEverything(t *testing.T) {
	now := time.Now()
	svc := newTestSnapshotService(
		&fakeChain{balance: 2_000_000_000},
		&fakeNativePrice{price: 100.0},
		&fakeTokenResolver{holdings: []types.TokenHolding{
			{Mint: "usdc", UIAmount: 50, ValueUSD: floatPtr(50.0)},
			{Mint: "unpriced", UIAmount: 10},
		}},
		&fakeNFTResolver{holdings: []types.NFTHolding{{Mint: "nft1", Name: "Cool Cat"}}},
		&fakeActivityResolver{
			records: []types.ActivityRecord{{Signature: "sig1", Kind: types.ActivityTransfer}},
			points:  []types.BalancePoint{{Time: now.Add(-time.Hour), BalanceSOL: 1.0}, {Time: now, BalanceSOL: 2.0}},
		},
		&fakeStakingResolver{positions: []types.StakedPosition{
			{Symbol: "stSOL", Amount: 1.0, ValueUSD: floatPtr(105.0)},
		}},
	)

	snapshot, err := svc.FetchWalletSnapshot(context.Background(), testWallet)
	require.NoError(t, err)

	assert.Equal(t, testWallet, snapshot.Address)
	assert.Equal(t, 2.0, snapshot.BalanceSOL)
	assert.Equal(t, 100.0, snapshot.SolPriceUSD)
	// 2 SOL * 100 + 50 token USD + 105 staked USD
	assert.InDelta(t, 355.0, snapshot.TotalValueUSD, 1e-9)
	assert.Len(t, snapshot.Tokens, 2)
	assert.Len(t, snapshot.NFTs, 1)
	assert.Len(t, snapshot.Transactions, 1)
	assert.Len(t, snapshot.StakedTokens, 1)
	assert.Len(t, snapshot.BalanceHistory, 2)
	assert.False(t, snapshot.CapturedAt.IsZero())
}

func TestFetchWalletSnapshotRejectsInvalidAddress(t *testing.T) {
	svc := newTestSnapshotService(&fakeChain{}, &fakeNativePrice{}, &fakeTokenResolver{}, &fakeNFTResolver{}, &fakeActivityResolver{}, &fakeStakingResolver{})

	_, err := svc.FetchWalletSnapshot(context.Background(), "not-an-address")
	require.Error(t, err)
	assert.Equal(t, "INVALID_ADDRESS", apperrors.Categorize(err).Code)
}

func TestFetchWalletSnapshotBalanceFailureIsFatal(t *testing.T) {
	svc := newTestSnapshotService(
		&fakeChain{balanceErr: errors.New("rpc down")},
		&fakeNativePrice{price: 100.0},
		&fakeTokenResolver{}, &fakeNFTResolver{}, &fakeActivityResolver{}, &fakeStakingResolver{},
	)

	_, err := svc.FetchWalletSnapshot(context.Background(), testWallet)
	assert.Error(t, err)
}

func TestFetchWalletSnapshotPriceFailureIsFatal(t *testing.T) {
	svc := newTestSnapshotService(
		&fakeChain{balance: 1_000_000_000},
		&fakeNativePrice{err: apperrors.NewProviderError("native-price", errors.New("down"))},
		&fakeTokenResolver{}, &fakeNFTResolver{}, &fakeActivityResolver{}, &fakeStakingResolver{},
	)

	_, err := svc.FetchWalletSnapshot(context.Background(), testWallet)
	require.Error(t, err)
	assert.Equal(t, "PROVIDER_ERROR", apperrors.Categorize(err).Code)
}

func TestFetchWalletSnapshotDegradesGracefully(t *testing.T) {
	svc := newTestSnapshotService(
		&fakeChain{balance: 3_000_000_000},
		&fakeNativePrice{price: 50.0},
		&fakeTokenResolver{err: errors.New("token scan failed")},
		&fakeNFTResolver{err: errors.New("das failed")},
		&fakeActivityResolver{err: errors.New("history failed"), points: []types.BalancePoint{{Time: time.Now(), BalanceSOL: 3.0}}},
		&fakeStakingResolver{positions: []types.StakedPosition{
			{Symbol: "stSOL", Amount: 2.0, ValueUSD: floatPtr(110.0)},
		}},
	)

	snapshot, err := svc.FetchWalletSnapshot(context.Background(), testWallet)
	require.NoError(t, err, "sub-fetch failures must not fail the snapshot")

	assert.Empty(t, snapshot.Tokens)
	assert.Empty(t, snapshot.NFTs)
	assert.Empty(t, snapshot.Transactions)
	// 3 SOL * 50 + 110 staked
	assert.InDelta(t, 260.0, snapshot.TotalValueUSD, 1e-9)
	assert.NotEmpty(t, snapshot.BalanceHistory)
}

func TestFetchWalletSnapshotEmptySectionsAreNonNil(t *testing.T) {
	svc := newTestSnapshotService(
		&fakeChain{balance: 1_000_000_000},
		&fakeNativePrice{price: 10.0},
		&fakeTokenResolver{}, &fakeNFTResolver{}, &fakeActivityResolver{}, &fakeStakingResolver{},
	)

	snapshot, err := svc.FetchWalletSnapshot(context.Background(), testWallet)
	require.NoError(t, err)

	assert.NotNil(t, snapshot.Tokens)
	assert.NotNil(t, snapshot.NFTs)
	assert.NotNil(t, snapshot.Transactions)
	assert.NotNil(t, snapshot.StakedTokens)
	require.Len(t, snapshot.BalanceHistory, 1, "history collapses to the current point")
	assert.Equal(t, 1.0, snapshot.BalanceHistory[0].BalanceSOL)
}

type slowNFTResolver struct{}

func (slowNFTResolver) Resolve(ctx context.Context, address string) ([]types.NFTHolding, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFetchWalletSnapshotSubFetchDeadline(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Phase3Deadline = 20 * time.Millisecond

	svc := NewSnapshotService(
		&fakeChain{balance: 1_000_000_000},
		&fakeNativePrice{price: 10.0},
		&fakePrices{},
		&fakeTokenResolver{},
		slowNFTResolver{},
		&fakeActivityResolver{},
		&fakeStakingResolver{},
		cfg,
		testLogger(),
	)

	started := time.Now()
	snapshot, err := svc.FetchWalletSnapshot(context.Background(), testWallet)
	require.NoError(t, err, "a hung sub-fetch degrades instead of failing")
	assert.Empty(t, snapshot.NFTs)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestNativeBalance(t *testing.T) {
	svc := newTestSnapshotService(
		&fakeChain{balance: 2_500_000_000},
		&fakeNativePrice{price: 40.0},
		&fakeTokenResolver{}, &fakeNFTResolver{}, &fakeActivityResolver{}, &fakeStakingResolver{},
	)

	snapshot, err := svc.NativeBalance(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2.5, snapshot.BalanceSOL)
	assert.Equal(t, 40.0, snapshot.SolPriceUSD)
	assert.InDelta(t, 100.0, snapshot.TotalValueUSD, 1e-9)
	assert.Empty(t, snapshot.Tokens, "balance endpoint does not aggregate holdings")
}

func TestTokenDetail(t *testing.T) {
	prices := &fakePrices{data: map[string]market.TokenMarketData{
		testMint: {Mint: testMint, Symbol: "USDC", PriceUSD: 1.0},
	}}
	svc := NewSnapshotService(
		&fakeChain{}, &fakeNativePrice{}, prices,
		&fakeTokenResolver{}, &fakeNFTResolver{}, &fakeActivityResolver{}, &fakeStakingResolver{},
		testEngineConfig(), testLogger(),
	)

	data, err := svc.TokenDetail(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, "USDC", data.Symbol)

	_, err = svc.TokenDetail(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, "INVALID_ADDRESS", apperrors.Categorize(err).Code)

	_, err = svc.TokenDetail(context.Background(), testWallet)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.Categorize(err).Code)
}
