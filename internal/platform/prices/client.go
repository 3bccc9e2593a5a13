// Package prices fetches spot token quotes from a CoinGecko-compatible
// simple price API.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client is the REST client for the price feed.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a price feed client.
//
// baseURL is the API root, e.g. "https://api.coingecko.com/api/v3".
// apiKey may be empty for the public tier.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// SimplePrice returns USD quotes keyed by feed id. Ids the feed does not
// know are absent from the result rather than an error.
func (c *Client) SimplePrice(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	// Sorted ids keep the query string stable across calls.
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	params := url.Values{}
	params.Set("ids", strings.Join(sorted, ","))
	params.Set("vs_currencies", "usd")

	body, err := c.doGet(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("prices: simple price: %w", err)
	}

	var quotes map[string]map[string]float64
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, fmt.Errorf("prices: decode quotes: %w", err)
	}

	result := make(map[string]float64, len(quotes))
	for id, byCurrency := range quotes {
		if usd, ok := byCurrency["usd"]; ok {
			result[id] = usd
		}
	}
	return result, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
