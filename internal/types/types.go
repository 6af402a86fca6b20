// Package types provides common type definitions for the wallet scanner system.
package types

import (
	"math"
	"time"
)

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// ActivityKind classifies an on-chain transaction touching the tracked wallet.
type ActivityKind string

const (
	// ActivityTransfer represents a native balance transfer
	ActivityTransfer ActivityKind = "transfer"
	// ActivitySwap represents a token swap
	ActivitySwap ActivityKind = "swap"
	// ActivityNFT represents an NFT-related transaction
	ActivityNFT ActivityKind = "nft"
	// ActivityUnknown represents a transaction that could not be classified
	ActivityUnknown ActivityKind = "unknown"
)

// TransactionStatus represents transaction execution status
type TransactionStatus string

const (
	// StatusSuccess represents a successful transaction
	StatusSuccess TransactionStatus = "success"
	// StatusFailed represents a failed transaction
	StatusFailed TransactionStatus = "failed"
)

// TransactionDirection represents whether a transaction is incoming or outgoing
type TransactionDirection string

const (
	// DirectionIn represents an incoming transaction (wallet is recipient)
	DirectionIn TransactionDirection = "in"
	// DirectionOut represents an outgoing transaction (wallet is sender)
	DirectionOut TransactionDirection = "out"
)

// TokenHolding represents one fungible token position held by the wallet.
// Instances are built once per snapshot and not mutated afterwards.
type TokenHolding struct {
	Mint       string   `json:"mint"`
	Symbol     string   `json:"symbol"`
	Name       string   `json:"name"`
	RawAmount  uint64   `json:"rawAmount"`
	Decimals   uint8    `json:"decimals"`
	UIAmount   float64  `json:"uiAmount"`
	LogoURI    string   `json:"logoUri,omitempty"`
	PriceUSD   *float64 `json:"priceUsd,omitempty"`
	ValueUSD   *float64 `json:"valueUsd,omitempty"`
	Change24h  *float64 `json:"change24h,omitempty"`
	Verified   bool     `json:"verified"`
}

// UIAmountFor converts a raw integer amount into its display amount.
func UIAmountFor(raw uint64, decimals uint8) float64 {
	return float64(raw) / math.Pow10(int(decimals))
}

// NFTHolding represents one non-fungible token owned by the wallet.
// A holding may be a bare stub when only the heuristic detection path succeeded.
type NFTHolding struct {
	Mint        string `json:"mint"`
	Name        string `json:"name"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Collection  string `json:"collection,omitempty"`
	Description string `json:"description,omitempty"`
}

// ActivityRecord represents one transaction signature touching the wallet.
type ActivityRecord struct {
	Signature    string                `json:"signature"`
	BlockTime    *time.Time            `json:"blockTime,omitempty"`
	Kind         ActivityKind          `json:"kind"`
	Status       TransactionStatus     `json:"status"`
	FeeSOL       float64               `json:"feeSol"`
	AmountSOL    *float64              `json:"amountSol,omitempty"`
	Direction    *TransactionDirection `json:"direction,omitempty"`
	Counterparty *string               `json:"counterparty,omitempty"`
}

// StakedPosition represents a yield-adjusted staked balance held in one
// staking program integration.
type StakedPosition struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Amount   float64  `json:"amount"`
	PriceUSD *float64 `json:"priceUsd,omitempty"`
	ValueUSD *float64 `json:"valueUsd,omitempty"`
}

// BalancePoint is one entry in the native balance history series.
type BalancePoint struct {
	Time       time.Time `json:"time"`
	BalanceSOL float64   `json:"balanceSol"`
}

// WalletSnapshot is the aggregate result of one orchestration run.
// Sub-collections may be empty when their sub-fetch degraded; the snapshot
// itself is only returned complete.
type WalletSnapshot struct {
	Address        string           `json:"address"`
	BalanceSOL     float64          `json:"balanceSol"`
	SolPriceUSD    float64          `json:"solPriceUsd"`
	TotalValueUSD  float64          `json:"totalValueUsd"`
	Tokens         []TokenHolding   `json:"tokens"`
	NFTs           []NFTHolding     `json:"nfts"`
	Transactions   []ActivityRecord `json:"transactions"`
	StakedTokens   []StakedPosition `json:"stakedTokens"`
	BalanceHistory []BalancePoint   `json:"balanceHistory"`
	CapturedAt     time.Time        `json:"capturedAt"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}
