package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gradwatch-trading/gradwatch/internal/engine"
	"github.com/gradwatch-trading/gradwatch/internal/notify"
	"github.com/gradwatch-trading/gradwatch/internal/state"
	"github.com/gradwatch-trading/gradwatch/internal/upstream"
)

// ---------------------------------------------------------------------------
// Poll scheduler. One goroutine owns every state mutation: the poll ticker,
// manual scan requests from the webhook, and websocket migration events all
// funnel into the same loop, so the store never sees concurrent writers
// beyond its own lock.
// ---------------------------------------------------------------------------

const summaryCheckInterval = 20 * time.Second

// Config configures the scheduler.
type Config struct {
	PollInterval time.Duration
	SummaryTimes []string // "HH:MM", local time
	TopGainers   int      // entries in the summary digest
}

// DefaultConfig returns the standard cadence.
func DefaultConfig() Config {
	return Config{
		PollInterval: 60 * time.Second,
		SummaryTimes: []string{"09:00", "21:00"},
		TopGainers:   3,
	}
}

// Scheduler drives the scan loop.
type Scheduler struct {
	config   Config
	engine   *engine.Engine
	store    *state.Store
	notifier *notify.Notifier
	daily    *DailyLog

	scanCh   chan struct{}
	streamCh <-chan upstream.TokenEvent

	lastSummary string // "2006-01-02 15:04" of the last flushed summary

	batchesRun   atomic.Int64
	manualScans  atomic.Int64
	streamEvents atomic.Int64
	lastBatch    atomic.Int64 // unix seconds
}

// New creates a scheduler. streamCh may be nil when the websocket feed is
// disabled.
func New(config Config, eng *engine.Engine, store *state.Store, notifier *notify.Notifier, streamCh <-chan upstream.TokenEvent) *Scheduler {
	if config.PollInterval == 0 {
		config.PollInterval = 60 * time.Second
	}
	if config.TopGainers == 0 {
		config.TopGainers = 3
	}
	return &Scheduler{
		config:   config,
		engine:   eng,
		store:    store,
		notifier: notifier,
		daily:    NewDailyLog(),
		scanCh:   make(chan struct{}, 1),
		streamCh: streamCh,
	}
}

// Daily exposes the digest counters for status reporting.
func (s *Scheduler) Daily() *DailyLog { return s.daily }

// RequestScan enqueues a manual scan. Returns false when a request is
// already pending.
func (s *Scheduler) RequestScan() bool {
	select {
	case s.scanCh <- struct{}{}:
		s.manualScans.Add(1)
		return true
	default:
		return false
	}
}

// Run drives the loop until ctx is cancelled. The store is saved after
// every batch and once more on shutdown.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().
		Dur("poll_interval", s.config.PollInterval).
		Strs("summary_times", s.config.SummaryTimes).
		Msg("[SCHED] Loop started")

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	summaryTicker := time.NewTicker(summaryCheckInterval)
	defer summaryTicker.Stop()

	// First batch immediately so a restart does not wait a full interval.
	s.runBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			if err := s.store.Save(); err != nil {
				log.Error().Err(err).Msg("[SCHED] Final save failed")
			}
			log.Info().Int64("batches", s.batchesRun.Load()).Msg("[SCHED] Loop stopped")
			return

		case <-ticker.C:
			s.runBatch(ctx)

		case <-s.scanCh:
			log.Info().Msg("[SCHED] Manual scan requested")
			s.runBatch(ctx)

		case event, ok := <-s.streamCh:
			if !ok {
				log.Warn().Msg("[SCHED] Migration stream closed, polling only")
				s.streamCh = nil
				continue
			}
			s.streamEvents.Add(1)
			log.Info().
				Str("mint", event.Mint).
				Str("symbol", event.Symbol).
				Msg("[SCHED] Migration event, scanning early")
			s.runBatch(ctx)

		case <-summaryTicker.C:
			s.maybeSummary(time.Now())
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context) {
	result, err := s.engine.ScanBatch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[SCHED] Batch failed")
		return
	}

	s.batchesRun.Add(1)
	s.lastBatch.Store(time.Now().Unix())
	s.daily.Record(result.Scanned, result.Accepted, result.NearMiss)

	if err := s.store.Save(); err != nil {
		log.Error().Err(err).Msg("[SCHED] State save failed")
	}

	s.maybeSummary(time.Now())
}

// maybeSummary flushes the digest when the wall clock matches a configured
// HH:MM that has not fired yet this minute.
func (s *Scheduler) maybeSummary(now time.Time) {
	hhmm := now.Format("15:04")
	for _, at := range s.config.SummaryTimes {
		if at != hhmm {
			continue
		}
		key := now.Format("2006-01-02 15:04")
		if key == s.lastSummary {
			return
		}
		s.lastSummary = key

		snap := s.daily.Flush()
		top := s.store.TopGainers(s.config.TopGainers)
		text := s.notifier.Formatter().DailySummary(snap.Scanned, snap.Accepted, snap.NearMiss, top)

		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		s.notifier.Client().Notify(sendCtx, text, nil)
		cancel()

		log.Info().
			Int("scanned", snap.Scanned).
			Int("accepted", snap.Accepted).
			Int("near_miss", snap.NearMiss).
			Msg("[SUMMARY] Digest sent")
		return
	}
}

// Stats holds scheduler counters.
type Stats struct {
	BatchesRun   int64 `json:"batches_run"`
	ManualScans  int64 `json:"manual_scans"`
	StreamEvents int64 `json:"stream_events"`
	LastBatchTS  int64 `json:"last_batch_ts"`
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		BatchesRun:   s.batchesRun.Load(),
		ManualScans:  s.manualScans.Load(),
		StreamEvents: s.streamEvents.Load(),
		LastBatchTS:  s.lastBatch.Load(),
	}
}
