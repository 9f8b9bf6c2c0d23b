package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// RugCheck client: per-token security report.
// Extraction rules:
//   - score: score_normalised when present, else raw score clamped to 0-100
//   - honeypot: any risk entry whose name contains "honeypot"
//   - lp locked: false if a market reports lpLocked=false or a risk entry
//     mentions unlocked liquidity; true otherwise
// ---------------------------------------------------------------------------

const rugcheckService = "rugcheck"

// RugCheckConfig configures the security-report client.
type RugCheckConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RugCheckClient fetches and normalizes security reports.
type RugCheckClient struct {
	config     RugCheckConfig
	httpClient *http.Client

	reportCount atomic.Int64
	errorCount  atomic.Int64
}

// NewRugCheckClient creates a security-report client.
func NewRugCheckClient(config RugCheckConfig) *RugCheckClient {
	return &RugCheckClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type rugcheckWire struct {
	Score           flexInt `json:"score"`
	ScoreNormalised *int    `json:"score_normalised"`
	TotalHolders    flexInt `json:"totalHolders"`
	FreezeAuthority string  `json:"freezeAuthority"`
	MintAuthority   string  `json:"mintAuthority"`
	Risks           []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"risks"`
	Markets []struct {
		LP struct {
			LPLocked    *bool       `json:"lpLocked"`
			LPLockedUSD flexDecimal `json:"lpLockedUSD"`
			LPLockedPct flexDecimal `json:"lpLockedPct"`
		} `json:"lp"`
	} `json:"markets"`
	TopHolders []struct {
		Pct float64 `json:"pct"`
	} `json:"topHolders"`
}

// Report fetches the security report for a token. On any failure it
// returns the Unknown sentinel together with the classified error; the
// caller decides whether a degraded report is acceptable.
func (c *RugCheckClient) Report(ctx context.Context, mint string) (SecurityReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"/tokens/"+mint+"/report", nil)
	if err != nil {
		return UnknownReport(), callErr(rugcheckService, KindUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		return UnknownReport(), classifyTransport(rugcheckService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errorCount.Add(1)
		return UnknownReport(), callErr(rugcheckService, KindUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.errorCount.Add(1)
		return UnknownReport(), classifyStatus(rugcheckService, resp.StatusCode)
	}

	var wire rugcheckWire
	if err := json.Unmarshal(body, &wire); err != nil {
		c.errorCount.Add(1)
		return UnknownReport(), callErr(rugcheckService, KindParse, err)
	}

	report := normalizeReport(wire)
	c.reportCount.Add(1)

	log.Debug().
		Str("mint", mint).
		Int("score", report.Score).
		Bool("honeypot", report.Honeypot).
		Bool("lp_locked", report.LPLocked).
		Int("holders", report.TotalHolders).
		Msg("rugcheck: report received")

	return report, nil
}

func normalizeReport(wire rugcheckWire) SecurityReport {
	report := SecurityReport{
		Known:        true,
		LPLocked:     true,
		TotalHolders: int(wire.TotalHolders),
		FreezeAuth:   wire.FreezeAuthority,
		MintAuth:     wire.MintAuthority,
	}

	if wire.ScoreNormalised != nil {
		report.Score = *wire.ScoreNormalised
	} else {
		report.Score = int(wire.Score)
	}
	if report.Score < 0 {
		report.Score = 0
	}
	if report.Score > 100 {
		report.Score = 100
	}

	for _, risk := range wire.Risks {
		name := strings.ToLower(risk.Name)
		if strings.Contains(name, "honeypot") {
			report.Honeypot = true
		}
		if strings.Contains(name, "unlocked") && strings.Contains(name, "liquidity") {
			report.LPLocked = false
		}
	}

	for _, m := range wire.Markets {
		if m.LP.LPLocked != nil && !*m.LP.LPLocked {
			report.LPLocked = false
		}
		report.LPLockedUSD = report.LPLockedUSD.Add(m.LP.LPLockedUSD.Decimal)
	}

	for _, h := range wire.TopHolders {
		report.TopHolderPcts = append(report.TopHolderPcts, h.Pct)
	}

	return report
}

// RugCheckStats holds security-report client counters.
type RugCheckStats struct {
	ReportCount int64 `json:"report_count"`
	ErrorCount  int64 `json:"error_count"`
}

func (c *RugCheckClient) Stats() RugCheckStats {
	return RugCheckStats{
		ReportCount: c.reportCount.Load(),
		ErrorCount:  c.errorCount.Load(),
	}
}
