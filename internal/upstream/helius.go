package upstream

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Helius client: recent token transfers. A "smart wallet" candidate is the
// first recipient whose decimal-adjusted transfer amount exceeds the
// configured floor.
// ---------------------------------------------------------------------------

const heliusService = "helius"

// HeliusConfig configures the transfer-history client.
type HeliusConfig struct {
	BaseURL        string
	APIKey         string
	SmartWalletMin float64
	Timeout        time.Duration
}

// HeliusClient fetches recent transfer history.
type HeliusClient struct {
	config     HeliusConfig
	httpClient *http.Client

	callCount  atomic.Int64
	errorCount atomic.Int64
	hitCount   atomic.Int64
}

// NewHeliusClient creates a transfer-history client.
func NewHeliusClient(config HeliusConfig) *HeliusClient {
	return &HeliusClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type transferWire struct {
	ToUserAccount string `json:"toUserAccount"`
	TokenAmount   struct {
		Amount   flexDecimal `json:"amount"`
		Decimals int         `json:"decimals"`
	} `json:"tokenAmount"`
}

// SmartBuyer scans recent transfers for the first recipient above the
// smart-wallet floor. A nil Transfer with nil error means no transfer
// qualified.
func (c *HeliusClient) SmartBuyer(ctx context.Context, mint string) (*Transfer, error) {
	queryURL, err := url.Parse(c.config.BaseURL + "/v0/tokens/" + mint + "/transfers")
	if err != nil {
		return nil, callErr(heliusService, KindUpstream, err)
	}
	q := queryURL.Query()
	q.Set("api-key", c.config.APIKey)
	queryURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL.String(), nil)
	if err != nil {
		return nil, callErr(heliusService, KindUpstream, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		return nil, classifyTransport(heliusService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errorCount.Add(1)
		return nil, callErr(heliusService, KindUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.errorCount.Add(1)
		return nil, classifyStatus(heliusService, resp.StatusCode)
	}

	var transfers []transferWire
	if err := json.Unmarshal(body, &transfers); err != nil {
		c.errorCount.Add(1)
		return nil, callErr(heliusService, KindParse, err)
	}

	c.callCount.Add(1)

	for _, t := range transfers {
		if t.ToUserAccount == "" {
			continue
		}
		raw, _ := t.TokenAmount.Amount.Float64()
		adjusted := raw / math.Pow10(t.TokenAmount.Decimals)
		if adjusted > c.config.SmartWalletMin {
			c.hitCount.Add(1)
			log.Debug().
				Str("mint", mint).
				Str("wallet", t.ToUserAccount).
				Float64("amount", adjusted).
				Msg("helius: smart wallet candidate")
			return &Transfer{Wallet: t.ToUserAccount, Amount: adjusted}, nil
		}
	}

	return nil, nil
}

// HeliusStats holds transfer-history client counters.
type HeliusStats struct {
	CallCount  int64 `json:"call_count"`
	ErrorCount int64 `json:"error_count"`
	HitCount   int64 `json:"hit_count"`
}

func (c *HeliusClient) Stats() HeliusStats {
	return HeliusStats{
		CallCount:  c.callCount.Load(),
		ErrorCount: c.errorCount.Load(),
		HitCount:   c.hitCount.Load(),
	}
}
