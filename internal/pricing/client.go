// Package pricing quotes tip amounts in SOL from a CoinGecko-style price API.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayush/tipfinity/internal/models"
)

// QuoteScale is the number of SOL decimals shown next to a tip amount.
const QuoteScale = 4

// Client fetches the SOL/USD price and memoises it for ttl.
type Client struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time

	mu      sync.Mutex
	price   decimal.Decimal
	fetched time.Time
}

func NewClient(baseURL string, httpClient *http.Client, ttl time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		ttl:        ttl,
		now:        time.Now,
	}
}

// SOLPriceUSD returns the current USD price of one SOL.
func (c *Client) SOLPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	if !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl {
		p := c.price
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := c.fetch(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	c.mu.Lock()
	c.price = p
	c.fetched = c.now()
	c.mu.Unlock()
	return p, nil
}

func (c *Client) fetch(ctx context.Context) (decimal.Decimal, error) {
	path := "/api/v3/simple/price?ids=solana&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price-api %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price-api %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decimal.Zero, fmt.Errorf("price-api %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	var result struct {
		Solana struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("price-api %s: decode: %w", path, err)
	}
	if !result.Solana.USD.IsPositive() {
		return decimal.Zero, fmt.Errorf("price-api %s: no SOL price in response", path)
	}
	return result.Solana.USD, nil
}

// Quote is a tip amount expressed in SOL.
type Quote struct {
	AmountUSD models.Amount   `json:"amount_usd"`
	PriceUSD  decimal.Decimal `json:"sol_price_usd"`
	SOL       decimal.Decimal `json:"sol"`
}

// Quote converts a USD amount to SOL, rounded to QuoteScale places.
func (c *Client) Quote(ctx context.Context, amount models.Amount) (Quote, error) {
	price, err := c.SOLPriceUSD(ctx)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AmountUSD: amount,
		PriceUSD:  price,
		SOL:       amount.Decimal().DivRound(price, QuoteScale),
	}, nil
}
