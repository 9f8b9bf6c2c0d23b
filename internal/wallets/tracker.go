package wallets

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gradwatch-trading/gradwatch/internal/state"
)

// ---------------------------------------------------------------------------
// Smart-wallet performance tracking. A wallet enters tracking when it shows
// up as a large early buyer of an accepted token; its historical buys yield
// an empirical win-rate used as a trust signal in alert messages.
// ---------------------------------------------------------------------------

// Config sets the win definition.
type Config struct {
	WinMultiplier float64 // win when last valuation reaches entry * multiplier
	WinFloorUSD   float64 // or when it reaches this absolute valuation
}

// DefaultConfig returns the standard win definition.
func DefaultConfig() Config {
	return Config{WinMultiplier: 2.0, WinFloorUSD: 100_000}
}

// Tracker records smart-wallet buys against the state store and computes
// win-rates on demand.
type Tracker struct {
	config Config
	store  *state.Store

	buysRecorded atomic.Int64
}

// NewTracker creates a wallet performance tracker.
func NewTracker(config Config, store *state.Store) *Tracker {
	return &Tracker{config: config, store: store}
}

// RecordBuy registers a new tracked buy at the entry valuation.
func (t *Tracker) RecordBuy(wallet, token string, entryFDV decimal.Decimal) {
	t.store.AppendBuy(wallet, state.WalletBuy{
		Token:    token,
		EntryFDV: entryFDV,
		LastFDV:  entryFDV,
		At:       time.Now(),
	})
	t.buysRecorded.Add(1)

	walletPrefix := wallet
	if len(walletPrefix) > 12 {
		walletPrefix = walletPrefix[:12]
	}
	log.Debug().
		Str("wallet", walletPrefix).
		Str("token", token).
		Str("entry_fdv", entryFDV.String()).
		Msg("wallets: buy recorded")
}

// Refresh updates the last known valuation for every buy of the token.
func (t *Tracker) Refresh(token string, fdv decimal.Decimal) {
	t.store.RefreshBuys(token, fdv)
}

// isWin applies the win definition to a single buy.
func (t *Tracker) isWin(buy state.WalletBuy) bool {
	if !buy.EntryFDV.IsPositive() {
		return false
	}
	target := buy.EntryFDV.Mul(decimal.NewFromFloat(t.config.WinMultiplier))
	if buy.LastFDV.GreaterThanOrEqual(target) {
		return true
	}
	return buy.LastFDV.GreaterThanOrEqual(decimal.NewFromFloat(t.config.WinFloorUSD))
}

// WinRate returns the wallet's win percentage (0-100) and whether it is
// defined. A wallet with zero recorded buys has no win-rate; it is never
// reported as zero.
func (t *Tracker) WinRate(wallet string) (float64, bool) {
	buys := t.store.WalletBuys(wallet)
	if len(buys) == 0 {
		return 0, false
	}
	wins := 0
	for _, buy := range buys {
		if t.isWin(buy) {
			wins++
		}
	}
	return 100 * float64(wins) / float64(len(buys)), true
}

// TrackerStats holds tracker counters.
type TrackerStats struct {
	BuysRecorded int64 `json:"buys_recorded"`
}

func (t *Tracker) Stats() TrackerStats {
	return TrackerStats{BuysRecorded: t.buysRecorded.Load()}
}
