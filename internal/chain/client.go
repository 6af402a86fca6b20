// Package chain provides a thin facade over a single Solana JSON-RPC endpoint.
// All calls pass through one shared rate limiter so concurrent resolvers cannot
// multiply the request pressure on the provider.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	jsonrpc "github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	apperrors "github.com/wallet-scanner/internal/errors"
)

// Well-known token program namespaces scanned for fungible holdings.
var (
	TokenProgramID     = solana.TokenProgramID.String()
	Token2022ProgramID = solana.Token2022ProgramID.String()
)

// Client is the RPC facade used by every resolver. One instance is
// constructed at startup and shared for the process lifetime.
type Client struct {
	rpcClient  *rpc.Client
	httpClient *http.Client
	endpoint   string
	limiter    *rate.Limiter
}

// NewClient creates a chain client for the given JSON-RPC endpoint.
// requestsPerSecond bounds the aggregate request rate across all resolvers.
func NewClient(endpoint string, requestsPerSecond int) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 8
	}
	return &Client{
		rpcClient: rpc.New(endpoint),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		endpoint: endpoint,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// TokenAccount is one per-holder, per-token record.
type TokenAccount struct {
	Mint      string
	RawAmount uint64
	Decimals  uint8
}

// ProgramAccount carries the raw bytes of one program-owned account.
type ProgramAccount struct {
	Address string
	Data    []byte
}

// SignatureInfo references one transaction signature touching an address.
type SignatureInfo struct {
	Signature string
	BlockTime *time.Time
	Failed    bool
}

// TransactionDetail is the subset of a parsed transaction the engine needs.
type TransactionDetail struct {
	Signature    string
	BlockTime    *time.Time
	Fee          uint64
	Failed       bool
	PreBalances  []uint64
	PostBalances []uint64
	AccountKeys  []string
}

// Balance returns the lamport balance for the given address.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, apperrors.NewInvalidAddressError(address)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	out, err := c.rpcClient.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, wrapRPCError("getBalance", err)
	}
	return out.Value, nil
}

// parsedTokenAccount is the jsonParsed SPL token account schema. Accounts
// that do not match it are skipped (fail closed).
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals uint8  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// TokenAccountsByOwner enumerates the owner's token accounts under one token
// program namespace.
func (c *Client) TokenAccountsByOwner(ctx context.Context, address, programID string) ([]TokenAccount, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, apperrors.NewInvalidAddressError(address)
	}
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid token program id %q: %w", programID, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.rpcClient.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &program},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingJSONParsed,
		},
	)
	if err != nil {
		return nil, wrapRPCError("getTokenAccountsByOwner", err)
	}

	accounts := make([]TokenAccount, 0, len(out.Value))
	for _, raw := range out.Value {
		rawJSON := raw.Account.Data.GetRawJSON()
		if rawJSON == nil {
			continue
		}
		var parsed parsedTokenAccount
		if err := json.Unmarshal(rawJSON, &parsed); err != nil {
			continue
		}
		info := parsed.Parsed.Info
		if info.Mint == "" {
			continue
		}
		amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		accounts = append(accounts, TokenAccount{
			Mint:      info.Mint,
			RawAmount: amount,
			Decimals:  info.TokenAmount.Decimals,
		})
	}
	return accounts, nil
}

// ProgramAccounts scans a program's accounts, filtered by exact data size and
// optionally by a byte-offset match. memcmpBytes may be nil to skip the
// offset filter.
func (c *Client) ProgramAccounts(ctx context.Context, programID string, dataSize uint64, memcmpOffset uint64, memcmpBytes []byte) ([]ProgramAccount, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", programID, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	filters := []rpc.RPCFilter{{DataSize: dataSize}}
	if len(memcmpBytes) > 0 {
		filters = append(filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: memcmpOffset,
				Bytes:  solana.Base58(memcmpBytes),
			},
		})
	}

	out, err := c.rpcClient.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters:    filters,
	})
	if err != nil {
		return nil, wrapRPCError("getProgramAccounts", err)
	}

	accounts := make([]ProgramAccount, 0, len(out))
	for _, keyed := range out {
		accounts = append(accounts, ProgramAccount{
			Address: keyed.Pubkey.String(),
			Data:    keyed.Account.Data.GetBinary(),
		})
	}
	return accounts, nil
}

// Signatures lists the most recent transaction signatures touching an
// address, newest first.
func (c *Client) Signatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, apperrors.NewInvalidAddressError(address)
	}
	if limit <= 0 {
		limit = 1
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, owner, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, wrapRPCError("getSignaturesForAddress", err)
	}

	sigs := make([]SignatureInfo, 0, len(out))
	for _, item := range out {
		info := SignatureInfo{
			Signature: item.Signature.String(),
			Failed:    item.Err != nil,
		}
		if item.BlockTime != nil {
			t := item.BlockTime.Time()
			info.BlockTime = &t
		}
		sigs = append(sigs, info)
	}
	return sigs, nil
}

// Transaction fetches one confirmed transaction with balance metadata.
func (c *Client) Transaction(ctx context.Context, signature string) (*TransactionDetail, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	maxVersion := uint64(0)
	out, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, wrapRPCError("getTransaction", err)
	}
	if out == nil || out.Meta == nil {
		return nil, apperrors.NewNotFoundError("transaction", signature)
	}

	detail := &TransactionDetail{
		Signature:    signature,
		Fee:          out.Meta.Fee,
		Failed:       out.Meta.Err != nil,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
	}
	if out.BlockTime != nil {
		t := out.BlockTime.Time()
		detail.BlockTime = &t
	}

	if out.Transaction != nil {
		if tx, err := out.Transaction.GetTransaction(); err == nil && tx != nil {
			keys := make([]string, 0, len(tx.Message.AccountKeys))
			for _, key := range tx.Message.AccountKeys {
				keys = append(keys, key.String())
			}
			detail.AccountKeys = keys
		}
	}
	return detail, nil
}

// wrapRPCError maps provider failures onto the engine's error taxonomy so the
// retry wrapper can tell transient rate limiting apart from hard failures.
func wrapRPCError(method string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == 429 {
		rl := apperrors.NewProviderRateLimitError("solana-rpc")
		rl.Cause = err
		return rl
	}
	return apperrors.NewProviderError("solana-rpc "+method, err)
}
