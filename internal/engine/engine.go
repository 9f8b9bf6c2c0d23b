package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gradwatch-trading/gradwatch/internal/state"
	"github.com/gradwatch-trading/gradwatch/internal/upstream"
	"github.com/gradwatch-trading/gradwatch/internal/wallets"
)

// ---------------------------------------------------------------------------
// Filter & Enrichment Engine.
// Pipeline per candidate: seen-gate -> pre-check -> rugcheck -> security
// check -> enrichment (bonding curve, holder map, smart wallet) -> track ->
// alert. A failed enrichment call degrades that field to "not available",
// it never aborts the candidate.
// ---------------------------------------------------------------------------

// AlertKind discriminates outbound notifications.
type AlertKind string

const (
	AlertNewToken AlertKind = "NEW_TOKEN"
	AlertGain     AlertKind = "GAIN"
	AlertSoar     AlertKind = "SOAR"
)

// Alert is one outbound notification.
type Alert struct {
	Kind    AlertKind
	Record  *DerivedRecord // set for NEW_TOKEN
	Address string
	Symbol  string

	// Gain / soar fields.
	Milestone  int64
	Gain       decimal.Decimal
	InitialFDV decimal.Decimal
	CurrentFDV decimal.Decimal
	Multiple   float64
}

// DerivedRecord is the enriched view of an accepted token.
type DerivedRecord struct {
	Address   string
	Name      string
	Symbol    string
	FDV       decimal.Decimal
	Liquidity decimal.Decimal
	Holders   int

	ScoreKnown bool
	Score      int
	LPLocked   bool

	CurveKnown bool
	CurveFrac  float64

	HolderMapKnown bool
	TopHolderPcts  []float64
	TopHolderSum   float64

	SmartWallet  string
	SmartAmount  float64
	WinRateKnown bool
	WinRatePct   float64

	Warnings []string
}

// Outcome classifies what ProcessListing did with a candidate.
type Outcome string

const (
	OutcomeAlreadySeen Outcome = "ALREADY_SEEN"
	OutcomeRejected    Outcome = "REJECTED"
	OutcomeNearMiss    Outcome = "NEAR_MISS"
	OutcomeAccepted    Outcome = "ACCEPTED"
)

// BatchResult summarizes one scan batch.
type BatchResult struct {
	BatchID   string `json:"batch_id"`
	Scanned   int    `json:"scanned"`
	Accepted  int    `json:"accepted"`
	Rejected  int    `json:"rejected"`
	NearMiss  int    `json:"near_miss"`
	Refreshed int    `json:"refreshed"`
}

// Clients bundles the upstream dependencies of the engine.
type Clients struct {
	Moralis    *upstream.MoralisClient
	RugCheck   *upstream.RugCheckClient
	Bonding    *upstream.BondingClient
	BubbleMaps *upstream.BubbleMapsClient
	Helius     *upstream.HeliusClient
}

// Config configures the engine.
type Config struct {
	Filters        FilterConfig
	MilestonesUSD  []int64
	SoarWindowMin  int
	SoarWindowMax  int
	SoarMultiplier float64
	CallTimeout    time.Duration
}

// Engine is the filter & enrichment engine.
type Engine struct {
	config  Config
	clients Clients
	store   *state.Store
	wallets *wallets.Tracker

	onAlert func(Alert)

	scanned  atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
}

// New creates an engine.
func New(config Config, clients Clients, store *state.Store, walletTracker *wallets.Tracker) *Engine {
	if config.CallTimeout == 0 {
		config.CallTimeout = 15 * time.Second
	}
	return &Engine{
		config:  config,
		clients: clients,
		store:   store,
		wallets: walletTracker,
	}
}

// SetOnAlert sets the notification callback.
func (e *Engine) SetOnAlert(fn func(Alert)) { e.onAlert = fn }

func (e *Engine) emit(alert Alert) {
	if e.onAlert != nil {
		e.onAlert(alert)
	}
}

// ScanBatch fetches the graduated listing page and runs every candidate
// through the pipeline sequentially, then checks tracked tokens for gain
// and soar alerts.
func (e *Engine) ScanBatch(ctx context.Context) (BatchResult, error) {
	result := BatchResult{BatchID: uuid.NewString()}

	listings, err := e.clients.Moralis.GraduatedPage(ctx)
	if err != nil {
		return result, err
	}

	for _, listing := range listings {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		switch e.ProcessListing(ctx, listing) {
		case OutcomeAccepted:
			result.Accepted++
			result.Scanned++
		case OutcomeNearMiss:
			result.NearMiss++
			result.Rejected++
			result.Scanned++
		case OutcomeRejected:
			result.Rejected++
			result.Scanned++
		case OutcomeAlreadySeen:
			result.Refreshed++
		}
	}

	e.CheckTracked(time.Now())

	log.Info().
		Str("batch_id", result.BatchID).
		Int("scanned", result.Scanned).
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Int("near_miss", result.NearMiss).
		Int("refreshed", result.Refreshed).
		Msg("[BATCH] Scan complete")

	return result, nil
}

// ProcessListing runs one candidate through the pipeline.
func (e *Engine) ProcessListing(ctx context.Context, listing upstream.Listing) Outcome {
	addr := listing.TokenAddress

	// Re-observation: refresh tracked valuation and wallet exposure, never
	// re-alert as a new token.
	if e.store.Seen(addr) {
		if e.store.UpdateValuation(addr, listing.FDV) {
			e.wallets.Refresh(addr, listing.FDV)
		}
		return OutcomeAlreadySeen
	}

	e.scanned.Add(1)

	pre := PreCheck(e.config.Filters, listing)
	if !pre.Accepted {
		e.store.MarkSeen(addr)
		e.rejected.Add(1)
		log.Debug().
			Str("mint", addr).
			Str("symbol", listing.Symbol).
			Strs("reasons", pre.ReasonCodes).
			Msg("[FILTER DROP]")
		if pre.NearMiss {
			return OutcomeNearMiss
		}
		return OutcomeRejected
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	report, repErr := e.clients.RugCheck.Report(callCtx, addr)
	cancel()
	if repErr != nil {
		log.Warn().Err(repErr).Str("mint", addr).Msg("[ENRICH] rugcheck unavailable, degrading")
	}

	sec := SecurityCheck(e.config.Filters, report, listing.Holders)
	if !sec.Accepted {
		e.store.MarkSeen(addr)
		e.rejected.Add(1)
		log.Info().
			Str("mint", addr).
			Str("symbol", listing.Symbol).
			Strs("reasons", sec.ReasonCodes).
			Msg("[SECURITY DROP]")
		return OutcomeRejected
	}

	e.store.MarkSeen(addr)

	record := e.enrich(ctx, listing, report)
	record.Warnings = append(record.Warnings, sec.Warnings...)

	e.store.Track(addr, listing.Symbol, listing.FDV)
	e.accepted.Add(1)

	log.Info().
		Str("mint", addr).
		Str("symbol", listing.Symbol).
		Str("fdv", listing.FDV.String()).
		Str("liquidity", listing.Liquidity.String()).
		Int("holders", listing.Holders).
		Int("score", record.Score).
		Msg("[NEW TOKEN] Accepted")

	e.emit(Alert{
		Kind:    AlertNewToken,
		Record:  record,
		Address: addr,
		Symbol:  listing.Symbol,
	})
	return OutcomeAccepted
}

// enrich calls the remaining upstream clients for an accepted token. Every
// failure degrades the corresponding field.
func (e *Engine) enrich(ctx context.Context, listing upstream.Listing, report upstream.SecurityReport) *DerivedRecord {
	addr := listing.TokenAddress
	record := &DerivedRecord{
		Address:    addr,
		Name:       listing.Name,
		Symbol:     listing.Symbol,
		FDV:        listing.FDV,
		Liquidity:  listing.Liquidity,
		Holders:    listing.Holders,
		ScoreKnown: report.Known,
		Score:      report.Score,
		LPLocked:   report.LPLocked,
	}
	if report.TotalHolders > record.Holders {
		record.Holders = report.TotalHolders
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	if frac, err := e.clients.Bonding.Progress(callCtx, addr); err == nil {
		record.CurveKnown = true
		record.CurveFrac = frac
	} else {
		log.Warn().Err(err).Str("mint", addr).Msg("[ENRICH] bonding curve unavailable")
	}

	if top, sum, err := e.clients.BubbleMaps.TopShares(callCtx, addr); err == nil {
		record.HolderMapKnown = true
		record.TopHolderPcts = top
		record.TopHolderSum = sum
	} else {
		log.Warn().Err(err).Str("mint", addr).Msg("[ENRICH] holder map unavailable")
	}

	transfer, err := e.clients.Helius.SmartBuyer(callCtx, addr)
	if err != nil {
		log.Warn().Err(err).Str("mint", addr).Msg("[ENRICH] transfer history unavailable")
	} else if transfer != nil {
		record.SmartWallet = transfer.Wallet
		record.SmartAmount = transfer.Amount
		e.wallets.RecordBuy(transfer.Wallet, addr, listing.FDV)
		if rate, ok := e.wallets.WinRate(transfer.Wallet); ok {
			record.WinRateKnown = true
			record.WinRatePct = rate
		}
	}

	return record
}

// EngineStats holds engine counters.
type EngineStats struct {
	Scanned  int64 `json:"scanned"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Scanned:  e.scanned.Load(),
		Accepted: e.accepted.Load(),
		Rejected: e.rejected.Load(),
	}
}
