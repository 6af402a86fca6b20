// Package market resolves token price and display metadata from the
// market-data aggregation provider, and the native asset's USD price from a
// general-purpose price API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/wallet-scanner/internal/errors"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/retry"
)

// TokenMarketData is the resolved price/metadata for one mint.
type TokenMarketData struct {
	Mint         string
	Symbol       string
	Name         string
	LogoURI      string
	PriceUSD     float64
	LiquidityUSD float64
	Change24h    float64
}

type cacheEntry struct {
	data      TokenMarketData
	fetchedAt time.Time
}

// PriceCache batches mint lookups against the market provider and caches the
// results. Safe for concurrent use: reads take the read lock, population is
// last-writer-wins per mint with a per-entry TTL.
type PriceCache struct {
	httpClient *http.Client
	baseURL    string
	batchSize  int
	ttl        time.Duration
	log        *logging.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry

	now func() time.Time
}

// NewPriceCache creates a price cache against the given provider base URL.
func NewPriceCache(baseURL string, batchSize int, ttl time.Duration, log *logging.Logger) *PriceCache {
	if batchSize <= 0 {
		batchSize = 30
	}
	return &PriceCache{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		batchSize:  batchSize,
		ttl:        ttl,
		log:        log,
		entries:    make(map[string]cacheEntry),
		now:        time.Now,
	}
}

// pairResponse is the provider's listing schema. Listings that do not match
// are dropped (fail closed).
type pairResponse struct {
	Pairs []struct {
		BaseToken struct {
			Address string `json:"address"`
			Name    string `json:"name"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		PriceUSD  string `json:"priceUsd"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		PriceChange struct {
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
		Info struct {
			ImageURL string `json:"imageUrl"`
		} `json:"info"`
	} `json:"pairs"`
}

// Resolve returns market data for as many of the given mints as possible.
// Fresh cache entries are served without a network call; the rest are fetched
// in batches. A failed batch leaves its mints unresolved (stale entries are
// served when present) - this method never returns an error.
func (c *PriceCache) Resolve(ctx context.Context, mints []string) map[string]TokenMarketData {
	resolved := make(map[string]TokenMarketData, len(mints))
	var misses []string

	now := c.now()
	c.mu.RLock()
	for _, mint := range mints {
		entry, ok := c.entries[mint]
		if ok && now.Sub(entry.fetchedAt) < c.ttl {
			resolved[mint] = entry.data
		} else {
			misses = append(misses, mint)
		}
	}
	c.mu.RUnlock()

	for start := 0; start < len(misses); start += c.batchSize {
		end := start + c.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		fetched, err := c.fetchBatch(ctx, batch)
		if err != nil {
			c.log.WithError(err).WithField("batch_size", len(batch)).
				Warn("market batch fetch failed, serving stale entries where available")
			c.mu.RLock()
			for _, mint := range batch {
				if entry, ok := c.entries[mint]; ok {
					resolved[mint] = entry.data
				}
			}
			c.mu.RUnlock()
			continue
		}

		refreshedAt := c.now()
		c.mu.Lock()
		for mint, data := range fetched {
			c.entries[mint] = cacheEntry{data: data, fetchedAt: refreshedAt}
			resolved[mint] = data
		}
		c.mu.Unlock()
	}

	return resolved
}

// ResolveOne is the single-identifier form used by detail views.
func (c *PriceCache) ResolveOne(ctx context.Context, mint string) (TokenMarketData, bool) {
	data, ok := c.Resolve(ctx, []string{mint})[mint]
	return data, ok
}

// fetchBatch queries the provider for up to batchSize mints. When a mint has
// several listings the one with the greatest reported liquidity wins.
func (c *PriceCache) fetchBatch(ctx context.Context, mints []string) (map[string]TokenMarketData, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, strings.Join(mints, ","))

	var decoded pairResponse
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewProviderError("market", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return apperrors.NewProviderRateLimitError("market")
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return apperrors.NewProviderError("market",
				fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
		}

		decoded = pairResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return apperrors.NewProviderError("market", fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	best := make(map[string]TokenMarketData, len(mints))
	for _, pair := range decoded.Pairs {
		mint := pair.BaseToken.Address
		if mint == "" {
			continue
		}
		price, err := strconv.ParseFloat(pair.PriceUSD, 64)
		if err != nil {
			continue
		}
		current, exists := best[mint]
		if exists && pair.Liquidity.USD <= current.LiquidityUSD {
			continue
		}
		best[mint] = TokenMarketData{
			Mint:         mint,
			Symbol:       pair.BaseToken.Symbol,
			Name:         pair.BaseToken.Name,
			LogoURI:      pair.Info.ImageURL,
			PriceUSD:     price,
			LiquidityUSD: pair.Liquidity.USD,
			Change24h:    pair.PriceChange.H24,
		}
	}
	return best, nil
}
