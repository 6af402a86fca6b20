package service

import (
	"context"
	"time"

	"github.com/wallet-scanner/internal/chain"
	"github.com/wallet-scanner/internal/config"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/retry"
	"github.com/wallet-scanner/internal/types"
)

// HistoryService resolves recent transaction activity and derives the native
// balance history series from it.
type HistoryService struct {
	chain ChainReader
	cfg   *config.EngineConfig
	log   *logging.Logger
}

// NewHistoryService creates a new activity resolver.
func NewHistoryService(chainReader ChainReader, cfg *config.EngineConfig, log *logging.Logger) *HistoryService {
	return &HistoryService{
		chain: chainReader,
		cfg:   cfg,
		log:   log,
	}
}

// RecentActivity returns the wallet's most recent transactions, newest first.
// The signature listing is the only fatal call; a transaction whose detail
// cannot be fetched degrades to an unclassified record instead of failing the
// whole listing.
func (s *HistoryService) RecentActivity(ctx context.Context, address string) ([]types.ActivityRecord, error) {
	sigs, err := s.signatures(ctx, address)
	if err != nil {
		return nil, err
	}

	records := make([]types.ActivityRecord, 0, len(sigs))
	for start := 0; start < len(sigs); start += s.cfg.HistoryBatchSize {
		if start > 0 {
			if err := retry.Pace(ctx, s.cfg.HistoryBatchPacing); err != nil {
				return nil, err
			}
		}
		end := start + s.cfg.HistoryBatchSize
		if end > len(sigs) {
			end = len(sigs)
		}
		for _, sig := range sigs[start:end] {
			records = append(records, s.classify(ctx, address, sig))
		}
	}
	return records, nil
}

func (s *HistoryService) signatures(ctx context.Context, address string) ([]chain.SignatureInfo, error) {
	var sigs []chain.SignatureInfo
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		var err error
		sigs, err = s.chain.Signatures(ctx, address, s.cfg.HistoryLimit)
		return err
	})
	return sigs, err
}

// classify fetches one transaction's detail and maps it to an activity record.
func (s *HistoryService) classify(ctx context.Context, address string, sig chain.SignatureInfo) types.ActivityRecord {
	record := types.ActivityRecord{
		Signature: sig.Signature,
		BlockTime: sig.BlockTime,
		Kind:      types.ActivityUnknown,
		Status:    types.StatusSuccess,
	}
	if sig.Failed {
		record.Status = types.StatusFailed
	}

	var detail *chain.TransactionDetail
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		var err error
		detail, err = s.chain.Transaction(ctx, sig.Signature)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("signature", sig.Signature).
			Debug("transaction detail fetch failed, recording as unknown")
		return record
	}

	record.FeeSOL = float64(detail.Fee) / types.LamportsPerSol
	if detail.BlockTime != nil {
		record.BlockTime = detail.BlockTime
	}
	if detail.Failed {
		record.Status = types.StatusFailed
	}

	ownerIdx := indexOf(detail.AccountKeys, address)
	if ownerIdx < 0 || ownerIdx >= len(detail.PreBalances) || ownerIdx >= len(detail.PostBalances) {
		return record
	}

	delta := int64(detail.PostBalances[ownerIdx]) - int64(detail.PreBalances[ownerIdx])
	if abs64(delta) <= int64(s.cfg.DustLamports) {
		// Fee-only or dust movement: not a transfer worth surfacing.
		return record
	}

	record.Kind = types.ActivityTransfer
	amount := float64(delta) / types.LamportsPerSol
	record.AmountSOL = &amount

	direction := types.DirectionIn
	if delta < 0 {
		direction = types.DirectionOut
	}
	record.Direction = &direction

	// Positional heuristic: in a simple system transfer the fee payer is the
	// first key and the recipient the second.
	if counterparty := counterpartyFor(detail.AccountKeys, direction); counterparty != "" && counterparty != address {
		record.Counterparty = &counterparty
	}
	return record
}

// BalanceHistory reconstructs the native balance series by walking recent
// transactions backwards from the current balance. It never fails: when
// history cannot be resolved the series collapses to the single current point.
func (s *HistoryService) BalanceHistory(ctx context.Context, address string, currentLamports uint64) []types.BalancePoint {
	now := time.Now()
	current := types.BalancePoint{
		Time:       now,
		BalanceSOL: float64(currentLamports) / types.LamportsPerSol,
	}

	sigs, err := s.signatures(ctx, address)
	if err != nil {
		s.log.WithError(err).WithField("address", address).
			Debug("balance history signatures unavailable, returning current point only")
		return []types.BalancePoint{current}
	}

	// Walk newest to oldest, recording the balance each transaction started
	// from. Points collect in reverse chronological order and are flipped at
	// the end so the series reads oldest first.
	reversed := []types.BalancePoint{current}
	for _, sig := range sigs {
		var detail *chain.TransactionDetail
		err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
			var err error
			detail, err = s.chain.Transaction(ctx, sig.Signature)
			return err
		})
		if err != nil {
			s.log.WithError(err).WithField("signature", sig.Signature).
				Debug("balance history walk stopped at unfetchable transaction")
			break
		}
		ownerIdx := indexOf(detail.AccountKeys, address)
		if ownerIdx < 0 || ownerIdx >= len(detail.PreBalances) || detail.BlockTime == nil {
			continue
		}
		reversed = append(reversed, types.BalancePoint{
			Time:       *detail.BlockTime,
			BalanceSOL: float64(detail.PreBalances[ownerIdx]) / types.LamportsPerSol,
		})
	}

	points := make([]types.BalancePoint, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		points = append(points, reversed[i])
	}
	return points
}

func indexOf(keys []string, target string) int {
	for i, key := range keys {
		if key == target {
			return i
		}
	}
	return -1
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// counterpartyFor picks the likely other party of a simple transfer from the
// transaction's account key positions.
func counterpartyFor(keys []string, direction types.TransactionDirection) string {
	if len(keys) < 2 {
		return ""
	}
	if direction == types.DirectionOut {
		return keys[1]
	}
	return keys[0]
}
