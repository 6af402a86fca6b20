package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/wallet-scanner/internal/errors"
)

// The DAS (digital asset standard) methods are a provider-side RPC extension
// and take named params, which the SDK's positional-call helpers cannot
// express, so they go through a small hand-rolled JSON-RPC request.

// Asset is one indexed asset returned by the DAS extension.
type Asset struct {
	ID          string
	Interface   string
	Name        string
	Symbol      string
	Description string
	ImageURL    string
	Collection  string
}

// NonFungible reports whether the asset's indexed interface denotes an NFT.
func (a Asset) NonFungible() bool {
	switch a.Interface {
	case "V1_NFT", "V2_NFT", "LEGACY_NFT", "ProgrammableNFT", "MplCoreAsset":
		return true
	}
	return false
}

type dasRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type dasError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type dasAsset struct {
	ID        string `json:"id"`
	Interface string `json:"interface"`
	Content   struct {
		Metadata struct {
			Name        string `json:"name"`
			Symbol      string `json:"symbol"`
			Description string `json:"description"`
		} `json:"metadata"`
		Links struct {
			Image string `json:"image"`
		} `json:"links"`
	} `json:"content"`
	Grouping []struct {
		GroupKey   string `json:"group_key"`
		GroupValue string `json:"group_value"`
	} `json:"grouping"`
}

func (a dasAsset) toAsset() Asset {
	asset := Asset{
		ID:          a.ID,
		Interface:   a.Interface,
		Name:        a.Content.Metadata.Name,
		Symbol:      a.Content.Metadata.Symbol,
		Description: a.Content.Metadata.Description,
		ImageURL:    a.Content.Links.Image,
	}
	for _, group := range a.Grouping {
		if group.GroupKey == "collection" {
			asset.Collection = group.GroupValue
			break
		}
	}
	return asset
}

// AssetsByOwner returns indexed assets owned by the address. Endpoints
// without the DAS extension report a method-not-found error, which surfaces
// as a provider error so callers can fall back.
func (c *Client) AssetsByOwner(ctx context.Context, address string, limit int) ([]Asset, error) {
	if limit <= 0 {
		limit = 30
	}

	var result struct {
		Items []dasAsset `json:"items"`
	}
	err := c.dasCall(ctx, "getAssetsByOwner", map[string]interface{}{
		"ownerAddress": address,
		"page":         1,
		"limit":        limit,
	}, &result)
	if err != nil {
		return nil, err
	}

	assets := make([]Asset, 0, len(result.Items))
	for _, item := range result.Items {
		assets = append(assets, item.toAsset())
	}
	return assets, nil
}

// AssetBatch resolves display metadata for a batch of asset identifiers.
func (c *Client) AssetBatch(ctx context.Context, ids []string) (map[string]Asset, error) {
	if len(ids) == 0 {
		return map[string]Asset{}, nil
	}

	var result []dasAsset
	err := c.dasCall(ctx, "getAssetBatch", map[string]interface{}{
		"ids": ids,
	}, &result)
	if err != nil {
		return nil, err
	}

	assets := make(map[string]Asset, len(result))
	for _, item := range result {
		if item.ID == "" {
			continue
		}
		assets[item.ID] = item.toAsset()
	}
	return assets, nil
}

func (c *Client) dasCall(ctx context.Context, method string, params interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := dasRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewProviderError("das "+method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.NewProviderRateLimitError("das")
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperrors.NewProviderError("das "+method,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var envelope struct {
		Error  *dasError       `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apperrors.NewProviderError("das "+method, fmt.Errorf("decode response: %w", err))
	}
	if envelope.Error != nil {
		if envelope.Error.Code == 429 {
			return apperrors.NewProviderRateLimitError("das")
		}
		return apperrors.NewProviderError("das "+method,
			fmt.Errorf("rpc error (%d): %s", envelope.Error.Code, envelope.Error.Message))
	}
	if envelope.Result == nil {
		return apperrors.NewProviderError("das "+method, fmt.Errorf("missing result"))
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return apperrors.NewProviderError("das "+method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}
