package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// IndexerFetcher reads activity stats from an external chain indexer.
type IndexerFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewIndexerFetcher creates a new fetcher with optional proxy support.
func NewIndexerFetcher(baseURL, apiKey, proxyURL string) *IndexerFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &IndexerFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *IndexerFetcher) Name() string { return "indexer" }

// indexerStats is the expected JSON shape from the indexer.
type indexerStats struct {
	Volume  json.Number `json:"volume"`
	Wallets int         `json:"wallets"`
	Trades  int         `json:"trades"`
}

func (f *IndexerFetcher) FetchStats(ctx context.Context, window time.Duration) (model.ActivityStats, error) {
	endpoint := fmt.Sprintf("%s/api/v1/stats?window=%d", f.BaseURL, int64(window.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.ActivityStats{}, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return model.ActivityStats{}, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.ActivityStats{}, fmt.Errorf("fetch stats: status %d, body: %s", resp.StatusCode, string(body))
	}

	var raw indexerStats
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.ActivityStats{}, fmt.Errorf("decode stats: %w", err)
	}
	vol, err := decimalFromNumber(raw.Volume)
	if err != nil {
		return model.ActivityStats{}, fmt.Errorf("decode stats volume: %w", err)
	}
	if vol.IsNegative() || raw.Wallets < 0 || raw.Trades < 0 {
		return model.ActivityStats{}, fmt.Errorf("decode stats: negative field")
	}
	return model.ActivityStats{Volume: vol, Wallets: raw.Wallets, Trades: raw.Trades}, nil
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
