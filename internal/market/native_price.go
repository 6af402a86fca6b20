package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/wallet-scanner/internal/errors"
	"github.com/wallet-scanner/internal/retry"
)

// NativePriceClient resolves the native asset's USD price from a
// general-purpose price API. It keeps its own short cache, independent of the
// token price cache.
type NativePriceClient struct {
	httpClient *http.Client
	baseURL    string
	ttl        time.Duration

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time

	now func() time.Time
}

// NewNativePriceClient creates a native price client against the given API
// base URL.
func NewNativePriceClient(baseURL string, ttl time.Duration) *NativePriceClient {
	return &NativePriceClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		ttl:        ttl,
		now:        time.Now,
	}
}

// SolPrice returns the current SOL/USD price. Unlike token enrichment this is
// a hard dependency of every snapshot, so failures propagate to the caller.
func (c *NativePriceClient) SolPrice(ctx context.Context) (float64, error) {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		price := c.price
		c.mu.Unlock()
		return price, nil
	}
	c.mu.Unlock()

	var price float64
	err := retry.WithRetry(ctx, nil, func(ctx context.Context) error {
		url := c.baseURL + "/simple/price?ids=solana&vs_currencies=usd"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewProviderError("native-price", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return apperrors.NewProviderRateLimitError("native-price")
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return apperrors.NewProviderError("native-price",
				fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
		}

		var decoded map[string]struct {
			USD float64 `json:"usd"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return apperrors.NewProviderError("native-price", fmt.Errorf("decode response: %w", err))
		}
		entry, ok := decoded["solana"]
		if !ok || entry.USD <= 0 {
			return apperrors.NewProviderError("native-price", fmt.Errorf("missing solana quote"))
		}
		price = entry.USD
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.price = price
	c.fetchedAt = c.now()
	c.mu.Unlock()

	return price, nil
}
