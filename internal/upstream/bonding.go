package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Bonding-curve client: completion percentage for a token still on (or
// just off) its curve. Bearer-token authenticated RPC, returns a fraction
// in [0,1].
// ---------------------------------------------------------------------------

const bondingService = "bonding"

// BondingConfig configures the bonding-curve client.
type BondingConfig struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
}

// BondingClient fetches bonding-curve completion.
type BondingClient struct {
	config     BondingConfig
	httpClient *http.Client

	callCount  atomic.Int64
	errorCount atomic.Int64
}

// NewBondingClient creates a bonding-curve client.
func NewBondingClient(config BondingConfig) *BondingClient {
	return &BondingClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type bondingWire struct {
	BondingCurve struct {
		PercentageComplete float64 `json:"percentageComplete"`
	} `json:"bondingCurve"`
}

// Progress returns the completion fraction in [0,1] for a token.
func (c *BondingClient) Progress(ctx context.Context, mint string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"/"+mint, nil)
	if err != nil {
		return 0, callErr(bondingService, KindUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		return 0, classifyTransport(bondingService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errorCount.Add(1)
		return 0, callErr(bondingService, KindUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.errorCount.Add(1)
		return 0, classifyStatus(bondingService, resp.StatusCode)
	}

	var wire bondingWire
	if err := json.Unmarshal(body, &wire); err != nil {
		c.errorCount.Add(1)
		return 0, callErr(bondingService, KindParse, err)
	}

	frac := wire.BondingCurve.PercentageComplete
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	c.callCount.Add(1)
	log.Debug().Str("mint", mint).Float64("fraction", frac).Msg("bonding: progress received")
	return frac, nil
}

// BondingStats holds bonding-curve client counters.
type BondingStats struct {
	CallCount  int64 `json:"call_count"`
	ErrorCount int64 `json:"error_count"`
}

func (c *BondingClient) Stats() BondingStats {
	return BondingStats{
		CallCount:  c.callCount.Load(),
		ErrorCount: c.errorCount.Load(),
	}
}
