package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Persistent state store: three flat JSON documents (seen-memory, tracking,
// wallet stats), each keyed by address and rewritten in full on save via
// write-temp-then-rename. A single mutex guards all mutation; the scheduler
// goroutine is the only writer in the running system, HTTP paths enqueue
// work instead of mutating directly.
// ---------------------------------------------------------------------------

const (
	seenFile     = "seen_tokens.json"
	trackingFile = "tracked_tokens.json"
	walletsFile  = "wallet_stats.json"
)

// TrackingRecord is the per-token performance record.
type TrackingRecord struct {
	Symbol     string          `json:"symbol"`
	InitialFDV decimal.Decimal `json:"initial_fdv"`
	CurrentFDV decimal.Decimal `json:"current_fdv"`
	Milestones []int64         `json:"milestones"` // gain thresholds already alerted
	SoarSent   bool            `json:"soar_sent"`
	FirstSeen  time.Time       `json:"first_seen"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Gain is the absolute USD gain since first detection.
func (r *TrackingRecord) Gain() decimal.Decimal {
	return r.CurrentFDV.Sub(r.InitialFDV)
}

// Multiple is CurrentFDV / InitialFDV, 0 when the initial valuation is zero.
func (r *TrackingRecord) Multiple() float64 {
	if r.InitialFDV.IsZero() {
		return 0
	}
	m, _ := r.CurrentFDV.Div(r.InitialFDV).Float64()
	return m
}

// HasMilestone reports whether threshold was already alerted.
func (r *TrackingRecord) HasMilestone(threshold int64) bool {
	for _, m := range r.Milestones {
		if m == threshold {
			return true
		}
	}
	return false
}

// WalletBuy is one tracked buy attributed to a smart wallet.
type WalletBuy struct {
	Token    string          `json:"token"`
	EntryFDV decimal.Decimal `json:"entry_fdv"`
	LastFDV  decimal.Decimal `json:"last_fdv"`
	At       time.Time       `json:"at"`
}

// WalletRecord is the per-wallet buy history.
type WalletRecord struct {
	Buys []WalletBuy `json:"buys"`
}

// GainEntry is one row of the top-performers report.
type GainEntry struct {
	Address  string          `json:"address"`
	Symbol   string          `json:"symbol"`
	Gain     decimal.Decimal `json:"gain"`
	Multiple float64         `json:"multiple"`
}

// Counts summarizes store contents for status reporting.
type Counts struct {
	Seen    int `json:"seen"`
	Tracked int `json:"tracked"`
	Wallets int `json:"wallets"`
}

// Store holds all persistent pipeline state.
type Store struct {
	dir string

	mu       sync.Mutex
	seen     map[string]int64 // address -> first-seen unix
	tracking map[string]*TrackingRecord
	wallets  map[string]*WalletRecord
}

// New creates an empty store rooted at dir.
func New(dir string) *Store {
	return &Store{
		dir:      dir,
		seen:     make(map[string]int64),
		tracking: make(map[string]*TrackingRecord),
		wallets:  make(map[string]*WalletRecord),
	}
}

// Load reads all three documents. Missing files mean empty state, not an
// error; a corrupt file is an error so a bad deploy does not silently
// discard history.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := loadJSON(filepath.Join(s.dir, seenFile), &s.seen); err != nil {
		return err
	}
	if err := loadJSON(filepath.Join(s.dir, trackingFile), &s.tracking); err != nil {
		return err
	}
	if err := loadJSON(filepath.Join(s.dir, walletsFile), &s.wallets); err != nil {
		return err
	}

	log.Info().
		Int("seen", len(s.seen)).
		Int("tracked", len(s.tracking)).
		Int("wallets", len(s.wallets)).
		Str("dir", s.dir).
		Msg("state: loaded")
	return nil
}

// Save persists all three documents atomically (temp file + rename each).
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}
	if err := saveJSON(filepath.Join(s.dir, seenFile), s.seen); err != nil {
		return err
	}
	if err := saveJSON(filepath.Join(s.dir, trackingFile), s.tracking); err != nil {
		return err
	}
	if err := saveJSON(filepath.Join(s.dir, walletsFile), s.wallets); err != nil {
		return err
	}
	return nil
}

func loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("state: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("state: parse %s: %w", path, err)
	}
	return nil
}

func saveJSON(path string, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: rename %s: %w", path, err)
	}
	return nil
}

// Seen reports whether the address was already observed.
func (s *Store) Seen(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[address]
	return ok
}

// MarkSeen records first observation. Returns false if already present.
func (s *Store) MarkSeen(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[address]; ok {
		return false
	}
	s.seen[address] = time.Now().Unix()
	return true
}

// Track starts tracking an accepted token.
func (s *Store) Track(address, symbol string, fdv decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.tracking[address] = &TrackingRecord{
		Symbol:     symbol,
		InitialFDV: fdv,
		CurrentFDV: fdv,
		FirstSeen:  now,
		UpdatedAt:  now,
	}
}

// Tracked returns a copy of the tracking record, or nil.
func (s *Store) Tracked(address string) *TrackingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tracking[address]
	if !ok {
		return nil
	}
	cp := *rec
	cp.Milestones = append([]int64(nil), rec.Milestones...)
	return &cp
}

// UpdateValuation refreshes the current valuation of a tracked token.
// Returns true when the token is tracked.
func (s *Store) UpdateValuation(address string, fdv decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tracking[address]
	if !ok {
		return false
	}
	rec.CurrentFDV = fdv
	rec.UpdatedAt = time.Now()
	return true
}

// RecordMilestone appends a fired gain threshold. Returns false when the
// threshold was already recorded (the caller must not re-alert).
func (s *Store) RecordMilestone(address string, threshold int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tracking[address]
	if !ok || rec.HasMilestone(threshold) {
		return false
	}
	rec.Milestones = append(rec.Milestones, threshold)
	return true
}

// MarkSoar records the one-shot soar alert. Returns false if already sent.
func (s *Store) MarkSoar(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tracking[address]
	if !ok || rec.SoarSent {
		return false
	}
	rec.SoarSent = true
	return true
}

// EachTracked calls fn with a snapshot of every tracking record.
func (s *Store) EachTracked(fn func(address string, rec TrackingRecord)) {
	s.mu.Lock()
	snapshot := make(map[string]TrackingRecord, len(s.tracking))
	for addr, rec := range s.tracking {
		cp := *rec
		cp.Milestones = append([]int64(nil), rec.Milestones...)
		snapshot[addr] = cp
	}
	s.mu.Unlock()

	for addr, rec := range snapshot {
		fn(addr, rec)
	}
}

// TopGainers ranks tracked tokens by absolute gain.
func (s *Store) TopGainers(n int) []GainEntry {
	s.mu.Lock()
	entries := make([]GainEntry, 0, len(s.tracking))
	for addr, rec := range s.tracking {
		entries = append(entries, GainEntry{
			Address:  addr,
			Symbol:   rec.Symbol,
			Gain:     rec.Gain(),
			Multiple: rec.Multiple(),
		})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Gain.GreaterThan(entries[j].Gain)
	})
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

// AppendBuy records a smart-wallet buy.
func (s *Store) AppendBuy(wallet string, buy WalletBuy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.wallets[wallet]
	if !ok {
		rec = &WalletRecord{}
		s.wallets[wallet] = rec
	}
	rec.Buys = append(rec.Buys, buy)
}

// RefreshBuys updates LastFDV for every buy of the given token.
func (s *Store) RefreshBuys(token string, fdv decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.wallets {
		for i := range rec.Buys {
			if rec.Buys[i].Token == token {
				rec.Buys[i].LastFDV = fdv
			}
		}
	}
}

// WalletBuys returns a copy of a wallet's buy history.
func (s *Store) WalletBuys(wallet string) []WalletBuy {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.wallets[wallet]
	if !ok {
		return nil
	}
	return append([]WalletBuy(nil), rec.Buys...)
}

// Counts returns store size counters.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Seen:    len(s.seen),
		Tracked: len(s.tracking),
		Wallets: len(s.wallets),
	}
}
