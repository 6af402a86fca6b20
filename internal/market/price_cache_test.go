package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-scanner/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatText)
}

func pairJSON(mint, symbol, price string, liquidity float64) string {
	return fmt.Sprintf(`{
		"baseToken": {"address": %q, "name": "%s Coin", "symbol": %q},
		"priceUsd": %q,
		"liquidity": {"usd": %f},
		"priceChange": {"h24": 1.25},
		"info": {"imageUrl": "https://img.example/%s.png"}
	}`, mint, symbol, symbol, price, liquidity, mint)
}

func marketServer(t *testing.T, calls *atomic.Int32, pairsByRequest func(mints []string) []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		path := strings.TrimPrefix(r.URL.Path, "/latest/dex/tokens/")
		mints := strings.Split(path, ",")
		pairs := pairsByRequest(mints)
		fmt.Fprintf(w, `{"pairs": [%s]}`, strings.Join(pairs, ","))
	}))
}

func TestResolveCachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	server := marketServer(t, &calls, func(mints []string) []string {
		var pairs []string
		for _, mint := range mints {
			pairs = append(pairs, pairJSON(mint, "TST", "2.50", 1000))
		}
		return pairs
	})
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())

	first := cache.Resolve(context.Background(), []string{"mintA"})
	require.Contains(t, first, "mintA")
	assert.Equal(t, 2.50, first["mintA"].PriceUSD)
	assert.Equal(t, "TST", first["mintA"].Symbol)

	second := cache.Resolve(context.Background(), []string{"mintA"})
	require.Contains(t, second, "mintA")
	assert.Equal(t, int32(1), calls.Load(), "second resolve must be served from cache")
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	server := marketServer(t, &calls, func(mints []string) []string {
		return []string{pairJSON("mintA", "TST", "2.50", 1000)}
	})
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Resolve(context.Background(), []string{"mintA"})
	now = now.Add(6 * time.Minute)
	cache.Resolve(context.Background(), []string{"mintA"})

	assert.Equal(t, int32(2), calls.Load())
}

func TestResolveBatchesLargeRequests(t *testing.T) {
	var calls atomic.Int32
	var batchSizes []int
	server := marketServer(t, &calls, func(mints []string) []string {
		batchSizes = append(batchSizes, len(mints))
		var pairs []string
		for _, mint := range mints {
			pairs = append(pairs, pairJSON(mint, "TST", "1.00", 10))
		}
		return pairs
	})
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())

	mints := make([]string, 70)
	for i := range mints {
		mints[i] = fmt.Sprintf("mint%02d", i)
	}
	resolved := cache.Resolve(context.Background(), mints)

	assert.Len(t, resolved, 70)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{30, 30, 10}, batchSizes)
}

func TestResolvePrefersHighestLiquidityListing(t *testing.T) {
	var calls atomic.Int32
	server := marketServer(t, &calls, func(mints []string) []string {
		return []string{
			pairJSON("mintA", "LOW", "1.00", 100),
			pairJSON("mintA", "HIGH", "1.10", 500),
			pairJSON("mintA", "MID", "1.05", 300),
		}
	})
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())
	resolved := cache.Resolve(context.Background(), []string{"mintA"})

	require.Contains(t, resolved, "mintA")
	assert.Equal(t, "HIGH", resolved["mintA"].Symbol)
	assert.Equal(t, 1.10, resolved["mintA"].PriceUSD)
	assert.Equal(t, 500.0, resolved["mintA"].LiquidityUSD)
}

func TestResolveSkipsUnparseablePrices(t *testing.T) {
	var calls atomic.Int32
	server := marketServer(t, &calls, func(mints []string) []string {
		return []string{pairJSON("mintA", "BAD", "not-a-number", 100)}
	})
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())
	resolved := cache.Resolve(context.Background(), []string{"mintA"})

	assert.NotContains(t, resolved, "mintA")
}

func TestResolveNeverFailsOnProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())
	resolved := cache.Resolve(context.Background(), []string{"mintA", "mintB"})

	assert.Empty(t, resolved)
}

func TestResolveServesStaleOnProviderError(t *testing.T) {
	var failing atomic.Bool
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"pairs": [%s]}`, pairJSON("mintA", "TST", "2.00", 50))
	}))
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())
	now := time.Now()
	cache.now = func() time.Time { return now }

	warm := cache.Resolve(context.Background(), []string{"mintA"})
	require.Contains(t, warm, "mintA")

	failing.Store(true)
	now = now.Add(6 * time.Minute)
	stale := cache.Resolve(context.Background(), []string{"mintA"})

	require.Contains(t, stale, "mintA")
	assert.Equal(t, 2.00, stale["mintA"].PriceUSD)
}

func TestResolveOne(t *testing.T) {
	var calls atomic.Int32
	server := marketServer(t, &calls, func(mints []string) []string {
		return []string{pairJSON("mintA", "TST", "3.00", 50)}
	})
	defer server.Close()

	cache := NewPriceCache(server.URL, 30, 5*time.Minute, testLogger())

	data, ok := cache.ResolveOne(context.Background(), "mintA")
	require.True(t, ok)
	assert.Equal(t, 3.00, data.PriceUSD)

	_, ok = cache.ResolveOne(context.Background(), "unknown")
	assert.False(t, ok)
}
