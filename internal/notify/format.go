package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gradwatch-trading/gradwatch/internal/engine"
	"github.com/gradwatch-trading/gradwatch/internal/state"
)

// ---------------------------------------------------------------------------
// Message templates. All alert text is built here so the delivery client
// stays dumb. Valuations render with comma grouping, bonding progress as a
// fixed ten-glyph bar.
// ---------------------------------------------------------------------------

const curveBarWidth = 10

// Formatter renders alerts and command replies.
type Formatter struct {
	ReferralURL string
}

// formatUSD renders a dollar amount with comma grouping, no cents.
func formatUSD(v decimal.Decimal) string {
	neg := v.IsNegative()
	digits := v.Abs().Round(0).String()

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
		if len(digits) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(digits[i : i+3])
		if i+3 < len(digits) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

// CurveBar renders a bonding-curve fraction in [0,1] as a filled/empty bar.
func CurveBar(frac float64) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac*curveBarWidth + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", curveBarWidth-filled)
}

// buttonRows builds the external link buttons for a token.
func (f Formatter) buttonRows(address, symbol string) [][]Button {
	rows := [][]Button{
		{
			{Text: "Pump.fun", URL: "https://pump.fun/" + address},
			{Text: "Rugcheck", URL: "https://rugcheck.xyz/tokens/" + address},
			{Text: "BubbleMaps", URL: "https://app.bubblemaps.io/token/solana/" + address},
		},
	}
	second := []Button{
		{Text: "Twitter Search", URL: "https://twitter.com/search?q=" + url.QueryEscape(symbol) + "&src=typed_query&f=live"},
	}
	if f.ReferralURL != "" {
		second = append(second, Button{Text: "Trade on Axiom", URL: f.ReferralURL})
	}
	return append(rows, second)
}

// NewToken renders the acceptance alert. Enrichment fields the upstream
// calls could not supply render as "n/a" rather than being dropped.
func (f Formatter) NewToken(rec *engine.DerivedRecord) (string, [][]Button) {
	var b strings.Builder
	b.WriteString("*NEW TOKEN DETECTED*\n")
	fmt.Fprintf(&b, "*Token:* $%s\n", rec.Symbol)
	fmt.Fprintf(&b, "*Market Cap:* %s | *Liquidity:* %s\n", formatUSD(rec.FDV), formatUSD(rec.Liquidity))
	fmt.Fprintf(&b, "*Holders:* %d\n", rec.Holders)

	if rec.ScoreKnown {
		fmt.Fprintf(&b, "*Rugscore:* %d ✅", rec.Score)
	} else {
		b.WriteString("*Rugscore:* n/a")
	}
	if !rec.LPLocked {
		b.WriteString(" | ⚠️ LP Not Locked")
	}
	b.WriteByte('\n')

	if rec.CurveKnown {
		fmt.Fprintf(&b, "*Bonding:* %s %.0f%%\n", CurveBar(rec.CurveFrac), rec.CurveFrac*100)
	} else {
		b.WriteString("*Bonding:* n/a\n")
	}

	if rec.HolderMapKnown && len(rec.TopHolderPcts) > 0 {
		fmt.Fprintf(&b, "*Top Holder:* %.1f%% | *Top %d Combined:* %.1f%%\n",
			rec.TopHolderPcts[0], len(rec.TopHolderPcts), rec.TopHolderSum)
	}

	if rec.SmartWallet != "" {
		fmt.Fprintf(&b, "*Smart Wallet Buy:* %.1f", rec.SmartAmount)
		if rec.WinRateKnown {
			fmt.Fprintf(&b, " (WinRate: %.0f%%)", rec.WinRatePct)
		}
		b.WriteByte('\n')
	}

	for _, w := range rec.Warnings {
		fmt.Fprintf(&b, "⚠️ %s\n", w)
	}

	if rec.ScoreKnown && rec.LPLocked {
		b.WriteString("✅ Token SAFE – LP Locked, No Honeypot\n")
	}

	return b.String(), f.buttonRows(rec.Address, rec.Symbol)
}

// Gain renders a milestone alert.
func (f Formatter) Gain(alert engine.Alert) (string, [][]Button) {
	var b strings.Builder
	b.WriteString("*GAIN ALERT* 📈\n")
	fmt.Fprintf(&b, "*Token:* $%s\n", alert.Symbol)
	fmt.Fprintf(&b, "*Milestone:* +%s\n", formatUSD(decimal.NewFromInt(alert.Milestone)))
	fmt.Fprintf(&b, "*Entry:* %s → *Now:* %s (gain %s)\n",
		formatUSD(alert.InitialFDV), formatUSD(alert.CurrentFDV), formatUSD(alert.Gain))
	return b.String(), f.buttonRows(alert.Address, alert.Symbol)
}

// Soar renders the one-hour doubling alert.
func (f Formatter) Soar(alert engine.Alert) (string, [][]Button) {
	var b strings.Builder
	b.WriteString("*SOAR* 🚀\n")
	fmt.Fprintf(&b, "*Token:* $%s doubled within its first hour\n", alert.Symbol)
	fmt.Fprintf(&b, "*Entry:* %s → *Now:* %s (x%.2f)\n",
		formatUSD(alert.InitialFDV), formatUSD(alert.CurrentFDV), alert.Multiple)
	return b.String(), f.buttonRows(alert.Address, alert.Symbol)
}

// Alert dispatches on the alert kind.
func (f Formatter) Alert(alert engine.Alert) (string, [][]Button) {
	switch alert.Kind {
	case engine.AlertNewToken:
		return f.NewToken(alert.Record)
	case engine.AlertGain:
		return f.Gain(alert)
	default:
		return f.Soar(alert)
	}
}

// DailySummary renders the twice-daily digest.
func (f Formatter) DailySummary(scanned, accepted, nearMiss int, top []state.GainEntry) string {
	var b strings.Builder
	b.WriteString("*DAILY SUMMARY* 📋\n")
	fmt.Fprintf(&b, "*Scanned:* %d | *Alerted:* %d | *Near-miss:* %d\n", scanned, accepted, nearMiss)
	if len(top) > 0 {
		b.WriteString("*Top gainers:*\n")
		for i, entry := range top {
			fmt.Fprintf(&b, "%d. $%s +%s (x%.2f)\n", i+1, entry.Symbol, formatUSD(entry.Gain), entry.Multiple)
		}
	}
	return b.String()
}

// Status renders the /status reply.
func (f Formatter) Status(counts state.Counts, engineStats engine.EngineStats) string {
	var b strings.Builder
	b.WriteString("*STATUS*\n")
	fmt.Fprintf(&b, "*Seen:* %d | *Tracked:* %d | *Wallets:* %d\n", counts.Seen, counts.Tracked, counts.Wallets)
	fmt.Fprintf(&b, "*Session:* scanned %d, accepted %d, rejected %d\n",
		engineStats.Scanned, engineStats.Accepted, engineStats.Rejected)
	return b.String()
}

// Top renders the /top reply.
func (f Formatter) Top(entries []state.GainEntry) string {
	if len(entries) == 0 {
		return "No tracked tokens yet."
	}
	var b strings.Builder
	b.WriteString("*TOP GAINERS*\n")
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. $%s +%s (x%.2f)\n", i+1, entry.Symbol, formatUSD(entry.Gain), entry.Multiple)
	}
	return b.String()
}

// Help is the static /help reply.
func (f Formatter) Help() string {
	return strings.Join([]string{
		"*COMMANDS*",
		"/scan – run one scan batch now",
		"/status – store counts and session stats",
		"/top – best tracked gainers",
		"/help – this text",
	}, "\n")
}

// Unauthorized is the reply for a sender who is not the admin.
func (f Formatter) Unauthorized() string {
	return "⛔ Not authorized."
}

// Unknown is the fallback for an unrecognized command.
func (f Formatter) Unknown() string {
	return "Unknown command. Try /help."
}
