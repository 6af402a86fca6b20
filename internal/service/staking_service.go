package service

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/retry"
	"github.com/wallet-scanner/internal/types"
)

// Fixed account layouts of the staking program integration. Both accounts
// start with an 8-byte discriminator.
const (
	stakeAccountSize = 120
	vaultStateSize   = 88

	stakeOwnerOffset     = 8  // pubkey, 32 bytes
	stakePrincipalOffset = 40 // u64 LE, scaled by 1e6
	vaultPriceOffset     = 40 // u64 LE, scaled by 1e9

	principalScale  = 1e6
	sharePriceScale = 1e9
)

// StakingService detects the wallet's position in the configured staking
// program and values it through the vault's current share price.
type StakingService struct {
	chain  ChainReader
	prices PriceResolver
	cfg    *config.StakingConfig
	log    *logging.Logger
}

// NewStakingService creates a new staking resolver.
func NewStakingService(chainReader ChainReader, prices PriceResolver, cfg *config.StakingConfig, log *logging.Logger) *StakingService {
	return &StakingService{
		chain:  chainReader,
		prices: prices,
		cfg:    cfg,
		log:    log,
	}
}

// Resolve returns the wallet's staked positions. Staking is strictly
// best-effort: a disabled integration or any lookup failure yields an empty
// result, never an error.
func (s *StakingService) Resolve(ctx context.Context, address string) ([]types.StakedPosition, error) {
	if s.cfg.StakeProgram == "" || s.cfg.VaultProgram == "" {
		return nil, nil
	}
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, nil
	}

	var stakeAccounts []chain.ProgramAccount
	err = retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		var err error
		stakeAccounts, err = s.chain.ProgramAccounts(ctx, s.cfg.StakeProgram, stakeAccountSize, stakeOwnerOffset, owner.Bytes())
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("address", address).Debug("stake account scan failed")
		return nil, nil
	}
	if len(stakeAccounts) == 0 {
		return nil, nil
	}

	var totalPrincipal uint64
	for _, acct := range stakeAccounts {
		principal, err := ParseStakeAccount(acct.Data)
		if err != nil {
			s.log.WithError(err).WithField("account", acct.Address).Debug("skipping malformed stake account")
			continue
		}
		totalPrincipal += principal
	}
	if totalPrincipal == 0 {
		return nil, nil
	}

	sharePrice, err := s.vaultSharePrice(ctx)
	if err != nil {
		s.log.WithError(err).Debug("vault state unavailable, skipping staked position")
		return nil, nil
	}

	position := types.StakedPosition{
		Symbol: s.cfg.Symbol,
		Name:   s.cfg.Name,
		Amount: (float64(totalPrincipal) / principalScale) * (float64(sharePrice) / sharePriceScale),
	}

	if s.cfg.StakedMint != "" {
		if data, ok := s.prices.ResolveOne(ctx, s.cfg.StakedMint); ok {
			price := data.PriceUSD
			value := position.Amount * price
			position.PriceUSD = &price
			position.ValueUSD = &value
		}
	}
	return []types.StakedPosition{position}, nil
}

// vaultSharePrice reads the vault's global state account. The vault program is
// expected to own exactly one state-sized account.
func (s *StakingService) vaultSharePrice(ctx context.Context) (uint64, error) {
	var accounts []chain.ProgramAccount
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		var err error
		accounts, err = s.chain.ProgramAccounts(ctx, s.cfg.VaultProgram, vaultStateSize, 0, nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, fmt.Errorf("no vault state account found")
	}
	return ParseVaultState(accounts[0].Data)
}

// ParseStakeAccount decodes the staked principal out of a stake account's raw
// bytes.
func ParseStakeAccount(data []byte) (uint64, error) {
	if len(data) != stakeAccountSize {
		return 0, fmt.Errorf("stake account size %d, want %d", len(data), stakeAccountSize)
	}
	dec := bin.NewBinDecoder(data)
	if err := dec.SkipBytes(stakePrincipalOffset); err != nil {
		return 0, err
	}
	return dec.ReadUint64(bin.LE)
}

// ParseVaultState decodes the current share price out of the vault state
// account's raw bytes.
func ParseVaultState(data []byte) (uint64, error) {
	if len(data) != vaultStateSize {
		return 0, fmt.Errorf("vault state size %d, want %d", len(data), vaultStateSize)
	}
	dec := bin.NewBinDecoder(data)
	if err := dec.SkipBytes(vaultPriceOffset); err != nil {
		return 0, err
	}
	return dec.ReadUint64(bin.LE)
}
