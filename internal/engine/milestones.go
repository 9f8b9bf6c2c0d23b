package engine

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gradwatch-trading/gradwatch/internal/state"
)

// ---------------------------------------------------------------------------
// Milestone tracking. Gain alerts fire when the absolute gain since first
// detection crosses a ladder threshold not yet recorded; each threshold
// fires at most once per token, even if the valuation dips back below and
// recovers. The soar check is a bounded re-check window around one hour
// after first detection.
// ---------------------------------------------------------------------------

// CheckTracked examines every tracked token for gain and soar alerts.
// Valuations are refreshed by ProcessListing on re-observation; this pass
// only evaluates the stored numbers.
func (e *Engine) CheckTracked(now time.Time) {
	e.store.EachTracked(func(addr string, rec state.TrackingRecord) {
		e.checkMilestones(addr, rec)
		e.checkSoar(addr, rec, now)
	})
}

func (e *Engine) checkMilestones(addr string, rec state.TrackingRecord) {
	gain := rec.Gain()
	for _, threshold := range e.config.MilestonesUSD {
		if gain.LessThan(decimal.NewFromInt(threshold)) {
			// Ladder is ascending, nothing further can have been crossed.
			break
		}
		if rec.HasMilestone(threshold) {
			continue
		}
		// RecordMilestone re-checks under the store lock; a false return
		// means another path already claimed this threshold.
		if !e.store.RecordMilestone(addr, threshold) {
			continue
		}

		log.Info().
			Str("mint", addr).
			Str("symbol", rec.Symbol).
			Int64("milestone", threshold).
			Str("gain", gain.String()).
			Msg("[GAIN] Milestone crossed")

		e.emit(Alert{
			Kind:       AlertGain,
			Address:    addr,
			Symbol:     rec.Symbol,
			Milestone:  threshold,
			Gain:       gain,
			InitialFDV: rec.InitialFDV,
			CurrentFDV: rec.CurrentFDV,
		})
	}
}

func (e *Engine) checkSoar(addr string, rec state.TrackingRecord, now time.Time) {
	if rec.SoarSent {
		return
	}

	age := now.Sub(rec.FirstSeen)
	if age < time.Duration(e.config.SoarWindowMin)*time.Minute ||
		age > time.Duration(e.config.SoarWindowMax)*time.Minute {
		return
	}

	multiple := rec.Multiple()
	if multiple < e.config.SoarMultiplier {
		return
	}

	if !e.store.MarkSoar(addr) {
		return
	}

	log.Info().
		Str("mint", addr).
		Str("symbol", rec.Symbol).
		Float64("multiple", multiple).
		Msg("[SOAR] Token soared within the check window")

	e.emit(Alert{
		Kind:       AlertSoar,
		Address:    addr,
		Symbol:     rec.Symbol,
		InitialFDV: rec.InitialFDV,
		CurrentFDV: rec.CurrentFDV,
		Multiple:   multiple,
	})
}
