package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleGetWallet returns the full aggregated snapshot for one wallet.
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	ctx := r.Context()

	if s.snapshots != nil {
		if cached := s.snapshots.Get(ctx, address); cached != nil {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	snapshot, err := s.engine.FetchWalletSnapshot(ctx, address)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.snapshots != nil {
		s.snapshots.Put(ctx, snapshot)
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// handleGetBalance returns only the native balance and its USD value.
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	snapshot, err := s.engine.NativeBalance(r.Context(), address)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":       snapshot.Address,
		"balanceSol":    snapshot.BalanceSOL,
		"solPriceUsd":   snapshot.SolPriceUSD,
		"totalValueUsd": snapshot.TotalValueUSD,
		"capturedAt":    snapshot.CapturedAt,
	})
}

// handleGetToken returns market data for one token mint.
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]

	data, err := s.engine.TokenDetail(r.Context(), mint)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"mint":         data.Mint,
		"symbol":       data.Symbol,
		"name":         data.Name,
		"logoUri":      data.LogoURI,
		"priceUsd":     data.PriceUSD,
		"liquidityUsd": data.LiquidityUSD,
		"change24h":    data.Change24h,
	})
}
