package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// BubbleMaps client: holder distribution map. Shares arrive as fractions
// in [0,1]; TopShares returns the top-N converted to percent plus their sum.
// ---------------------------------------------------------------------------

const bubblemapsService = "bubblemaps"

// BubbleMapsConfig configures the holder-map client.
type BubbleMapsConfig struct {
	BaseURL    string
	TopHolders int
	Timeout    time.Duration
}

// BubbleMapsClient fetches holder distribution data.
type BubbleMapsClient struct {
	config     BubbleMapsConfig
	httpClient *http.Client

	callCount  atomic.Int64
	errorCount atomic.Int64
}

// NewBubbleMapsClient creates a holder-map client.
func NewBubbleMapsClient(config BubbleMapsConfig) *BubbleMapsClient {
	return &BubbleMapsClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type holderMapWire struct {
	Holders []struct {
		Share float64 `json:"share"`
	} `json:"holders"`
}

// TopShares returns the top-N holder percentages (descending) and their sum.
func (c *BubbleMapsClient) TopShares(ctx context.Context, mint string) ([]float64, float64, error) {
	queryURL, err := url.Parse(c.config.BaseURL + "/map-data")
	if err != nil {
		return nil, 0, callErr(bubblemapsService, KindUpstream, err)
	}
	q := queryURL.Query()
	q.Set("chain", "solana")
	q.Set("token", mint)
	queryURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL.String(), nil)
	if err != nil {
		return nil, 0, callErr(bubblemapsService, KindUpstream, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		return nil, 0, classifyTransport(bubblemapsService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errorCount.Add(1)
		return nil, 0, callErr(bubblemapsService, KindUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.errorCount.Add(1)
		return nil, 0, classifyStatus(bubblemapsService, resp.StatusCode)
	}

	var wire holderMapWire
	if err := json.Unmarshal(body, &wire); err != nil {
		c.errorCount.Add(1)
		return nil, 0, callErr(bubblemapsService, KindParse, err)
	}

	shares := make([]float64, 0, len(wire.Holders))
	for _, h := range wire.Holders {
		shares = append(shares, h.Share*100)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(shares)))

	n := c.config.TopHolders
	if n > len(shares) {
		n = len(shares)
	}
	top := shares[:n]

	sum := 0.0
	for _, s := range top {
		sum += s
	}

	c.callCount.Add(1)
	log.Debug().
		Str("mint", mint).
		Int("top_n", n).
		Float64("top_sum_pct", sum).
		Msg("bubblemaps: holder map received")

	return top, sum, nil
}

// BubbleMapsStats holds holder-map client counters.
type BubbleMapsStats struct {
	CallCount  int64 `json:"call_count"`
	ErrorCount int64 `json:"error_count"`
}

func (c *BubbleMapsClient) Stats() BubbleMapsStats {
	return BubbleMapsStats{
		CallCount:  c.callCount.Load(),
		ErrorCount: c.errorCount.Load(),
	}
}
