package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-scanner/internal/chain"
)

func TestNFTResolveUsesAssetIndex(t *testing.T) {
	assets := &fakeAssets{owned: []chain.Asset{
		{ID: "nft1", Interface: "V1_NFT", Name: "Cool Cat", ImageURL: "https://img/1.png", Collection: "cats"},
		{ID: "fungible", Interface: "FungibleToken", Name: "Not an NFT"},
		{ID: "nft2", Interface: "ProgrammableNFT"},
	}}

	svc := NewNFTService(&fakeChain{}, assets, testEngineConfig(), testLogger())
	holdings, err := svc.Resolve(context.Background(), testWallet)
	require.NoError(t, err)

	require.Len(t, holdings, 2, "fungible interfaces must be filtered out")
	assert.Equal(t, "Cool Cat", holdings[0].Name)
	assert.Equal(t, "cats", holdings[0].Collection)
	// Nameless assets get a synthesized label.
	assert.Equal(t, "nft2", holdings[1].Name)
}

func TestNFTResolveFallsBackToHeuristic(t *testing.T) {
	assets := &fakeAssets{ownedErr: errors.New("method not found")}
	chainReader := &fakeChain{
		tokenAccounts: map[string][]chain.TokenAccount{
			chain.TokenProgramID: {
				{Mint: "FvmkFgmhZLsXAjz4RgDriUFcf8GeZqJF8MnSUbZUWxyz", RawAmount: 1, Decimals: 0},
				{Mint: "fungible", RawAmount: 1_000_000, Decimals: 6},
				{Mint: "alsoFungible", RawAmount: 1, Decimals: 2},
			},
		},
	}

	svc := NewNFTService(chainReader, assets, testEngineConfig(), testLogger())
	holdings, err := svc.Resolve(context.Background(), testWallet)
	require.NoError(t, err)

	require.Len(t, holdings, 1)
	assert.Equal(t, "FvmkFgmhZLsXAjz4RgDriUFcf8GeZqJF8MnSUbZUWxyz", holdings[0].Mint)
	assert.Equal(t, "Fvmk..Wxyz", holdings[0].Name)
	assert.Empty(t, holdings[0].ImageURL)
}

func TestNFTResolveHeuristicCap(t *testing.T) {
	var accounts []chain.TokenAccount
	for i := 0; i < 60; i++ {
		accounts = append(accounts, chain.TokenAccount{Mint: fmt.Sprintf("nft%02d", i), RawAmount: 1, Decimals: 0})
	}
	chainReader := &fakeChain{
		tokenAccounts: map[string][]chain.TokenAccount{chain.TokenProgramID: accounts},
	}

	svc := NewNFTService(chainReader, &fakeAssets{ownedErr: errors.New("down")}, testEngineConfig(), testLogger())
	holdings, err := svc.Resolve(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Len(t, holdings, 30)
}

func TestNFTResolveBothPathsFail(t *testing.T) {
	svc := NewNFTService(
		&fakeChain{tokenErr: map[string]error{chain.TokenProgramID: errors.New("rpc down")}},
		&fakeAssets{ownedErr: errors.New("das down")},
		testEngineConfig(),
		testLogger(),
	)

	_, err := svc.Resolve(context.Background(), testWallet)
	assert.Error(t, err)
}
