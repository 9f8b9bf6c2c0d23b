package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Moralis Solana Gateway client: graduated + bonding listing pages for the
// pump.fun exchange.
// ---------------------------------------------------------------------------

const (
	moralisService = "moralis"

	listingMaxRetries   = 1
	listingRetryBackoff = 500 * time.Millisecond
)

// MoralisConfig configures the listing client.
type MoralisConfig struct {
	BaseURL   string
	APIKey    string
	PageLimit int
	Timeout   time.Duration
}

// MoralisClient fetches candidate token listing pages.
type MoralisClient struct {
	config     MoralisConfig
	httpClient *http.Client

	pageCount    atomic.Int64
	errorCount   atomic.Int64
	avgLatencyMs atomic.Int64
}

// NewMoralisClient creates a listing client.
func NewMoralisClient(config MoralisConfig) *MoralisClient {
	return &MoralisClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type listingWire struct {
	Result []struct {
		TokenAddress string      `json:"tokenAddress"`
		Name         string      `json:"name"`
		Symbol       string      `json:"symbol"`
		FDV          flexDecimal `json:"fullyDilutedValuation"`
		Liquidity    flexDecimal `json:"liquidity"`
		Holders      flexInt     `json:"holders"`
		PriceUSD     flexDecimal `json:"priceUsd"`
		CreatedAt    string      `json:"createdAt"`
	} `json:"result"`
}

// GraduatedPage fetches the current page of graduated tokens.
func (c *MoralisClient) GraduatedPage(ctx context.Context) ([]Listing, error) {
	return c.page(ctx, "/token/mainnet/exchange/pumpfun/graduated")
}

// BondingPage fetches the current page of still-bonding tokens.
func (c *MoralisClient) BondingPage(ctx context.Context) ([]Listing, error) {
	return c.page(ctx, "/token/mainnet/exchange/pumpfun/bonding")
}

func (c *MoralisClient) page(ctx context.Context, path string) ([]Listing, error) {
	start := time.Now()

	queryURL, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return nil, callErr(moralisService, KindUpstream, err)
	}
	q := queryURL.Query()
	q.Set("limit", fmt.Sprintf("%d", c.config.PageLimit))
	queryURL.RawQuery = q.Encode()

	var body []byte
	var lastErr error

	for attempt := 0; attempt <= listingMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(listingRetryBackoff):
			case <-ctx.Done():
				return nil, classifyTransport(moralisService, ctx.Err())
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, queryURL.String(), nil)
		if reqErr != nil {
			return nil, callErr(moralisService, KindUpstream, reqErr)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-API-Key", c.config.APIKey)

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			lastErr = classifyTransport(moralisService, doErr)
			c.errorCount.Add(1)
			continue
		}

		b, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = callErr(moralisService, KindUpstream, readErr)
			c.errorCount.Add(1)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = classifyStatus(moralisService, resp.StatusCode)
			c.errorCount.Add(1)
			continue
		}

		body = b
		lastErr = nil
		break
	}

	if lastErr != nil {
		return nil, fmt.Errorf("moralis: page failed after %d attempts: %w", listingMaxRetries+1, lastErr)
	}

	var wire listingWire
	if err := json.Unmarshal(body, &wire); err != nil {
		c.errorCount.Add(1)
		return nil, callErr(moralisService, KindParse, err)
	}

	listings := make([]Listing, 0, len(wire.Result))
	for _, r := range wire.Result {
		if r.TokenAddress == "" {
			continue
		}
		l := Listing{
			TokenAddress: r.TokenAddress,
			Name:         r.Name,
			Symbol:       r.Symbol,
			FDV:          r.FDV.Decimal,
			Liquidity:    r.Liquidity.Decimal,
			Holders:      int(r.Holders),
			PriceUSD:     r.PriceUSD.Decimal,
		}
		if r.CreatedAt != "" {
			if ts, perr := time.Parse(time.RFC3339, r.CreatedAt); perr == nil {
				l.CreatedAt = ts
			}
		}
		listings = append(listings, l)
	}

	latency := time.Since(start).Milliseconds()
	count := c.pageCount.Add(1)
	// Incremental mean over all pages fetched so far.
	old := c.avgLatencyMs.Load()
	c.avgLatencyMs.Store(old + (latency-old)/count)

	log.Debug().
		Str("path", path).
		Int("listings", len(listings)).
		Int64("latency_ms", latency).
		Msg("moralis: page received")

	return listings, nil
}

// MoralisStats holds listing client counters.
type MoralisStats struct {
	PageCount    int64 `json:"page_count"`
	ErrorCount   int64 `json:"error_count"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

func (c *MoralisClient) Stats() MoralisStats {
	return MoralisStats{
		PageCount:    c.pageCount.Load(),
		ErrorCount:   c.errorCount.Load(),
		AvgLatencyMs: c.avgLatencyMs.Load(),
	}
}
