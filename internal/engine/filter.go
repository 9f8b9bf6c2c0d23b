package engine

import (
	"fmt"

	"github.com/gradwatch-trading/gradwatch/internal/upstream"
)

// ---------------------------------------------------------------------------
// Candidate filter. Two stages: a cheap pre-check on listing numbers alone
// (no external calls), then a security check against the rugcheck report.
// Every rejection carries a reason code with the offending values.
// ---------------------------------------------------------------------------

// FilterConfig holds the acceptance thresholds.
type FilterConfig struct {
	MinFDVUSD          float64
	MinLiquidityUSD    float64
	MinHolders         int
	MinRiskScore       int
	MaxSingleHolderPct float64
	RequireLPLocked    bool
	OverrideHolders    int
	NearMissMarginPct  float64
}

// Verdict is a filter decision.
type Verdict struct {
	Accepted    bool     `json:"accepted"`
	NearMiss    bool     `json:"near_miss"`
	ReasonCodes []string `json:"reason_codes"`
	Warnings    []string `json:"warnings"`
}

func (v *Verdict) reject(code string) {
	v.Accepted = false
	v.ReasonCodes = append(v.ReasonCodes, code)
}

// PreCheck applies the listing-level thresholds. A rejected candidate must
// be marked seen without any enrichment call.
func PreCheck(cfg FilterConfig, listing upstream.Listing) Verdict {
	v := Verdict{Accepted: true}

	fdv, _ := listing.FDV.Float64()
	lq, _ := listing.Liquidity.Float64()

	if fdv < cfg.MinFDVUSD {
		v.reject(fmt.Sprintf("FDV_BELOW_MIN:fdv=%.0f,min=%.0f", fdv, cfg.MinFDVUSD))
		// Within the margin below the FDV floor counts as a near-miss for
		// the daily summary.
		if fdv >= cfg.MinFDVUSD*(1-cfg.NearMissMarginPct/100) {
			v.NearMiss = true
		}
	}
	if lq < cfg.MinLiquidityUSD {
		v.reject(fmt.Sprintf("LIQUIDITY_BELOW_MIN:lq=%.0f,min=%.0f", lq, cfg.MinLiquidityUSD))
	}
	if listing.Holders < cfg.MinHolders {
		v.reject(fmt.Sprintf("HOLDERS_BELOW_MIN:holders=%d,min=%d", listing.Holders, cfg.MinHolders))
	}

	return v
}

// SecurityCheck applies the rugcheck-derived policies. Honeypot is an
// unconditional reject. A low score passes with a warning when the holder
// base is very large (explicit policy exception). LP-unlocked is a hard
// reject or a warning depending on configuration.
func SecurityCheck(cfg FilterConfig, report upstream.SecurityReport, holders int) Verdict {
	v := Verdict{Accepted: true}

	if report.Honeypot {
		v.reject("HONEYPOT")
		return v
	}

	if !report.LPLocked {
		if cfg.RequireLPLocked {
			v.reject("LP_UNLOCKED")
		} else {
			v.Warnings = append(v.Warnings, "LP_UNLOCKED")
		}
	}

	if report.Known && report.Score < cfg.MinRiskScore {
		effectiveHolders := holders
		if report.TotalHolders > effectiveHolders {
			effectiveHolders = report.TotalHolders
		}
		if effectiveHolders >= cfg.OverrideHolders {
			v.Warnings = append(v.Warnings,
				fmt.Sprintf("LOW_SCORE_OVERRIDE:score=%d,holders=%d", report.Score, effectiveHolders))
		} else {
			v.reject(fmt.Sprintf("SCORE_BELOW_MIN:score=%d,min=%d", report.Score, cfg.MinRiskScore))
		}
	}

	for _, pct := range report.TopHolderPcts {
		if pct >= cfg.MaxSingleHolderPct {
			v.reject(fmt.Sprintf("HOLDER_CONCENTRATION:pct=%.1f,max=%.1f", pct, cfg.MaxSingleHolderPct))
			break
		}
	}

	return v
}
