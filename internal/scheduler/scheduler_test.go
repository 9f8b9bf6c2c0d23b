package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradwatch-trading/gradwatch/internal/engine"
	"github.com/gradwatch-trading/gradwatch/internal/notify"
	"github.com/gradwatch-trading/gradwatch/internal/state"
	"github.com/gradwatch-trading/gradwatch/internal/upstream"
	"github.com/gradwatch-trading/gradwatch/internal/wallets"
)

type fixture struct {
	scheduler     *Scheduler
	store         *state.Store
	stateDir      string
	moralisCalls  atomic.Int64
	telegramCalls atomic.Int64
	telegramTexts chan string
}

// newFixture wires a scheduler against a fake listing page and a fake
// Telegram endpoint. The listing page is empty so batches complete fast.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{telegramTexts: make(chan string, 8)}

	moralisSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.moralisCalls.Add(1)
		w.Write([]byte(`{"result": []}`))
	}))
	t.Cleanup(moralisSrv.Close)

	telegramSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.telegramCalls.Add(1)
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		select {
		case f.telegramTexts <- payload.Text:
		default:
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(telegramSrv.Close)

	f.stateDir = t.TempDir()
	f.store = state.New(f.stateDir)
	walletTracker := wallets.NewTracker(wallets.DefaultConfig(), f.store)

	eng := engine.New(engine.Config{
		Filters:       engine.FilterConfig{MinFDVUSD: 20_000, MinLiquidityUSD: 5_000, MinHolders: 80},
		MilestonesUSD: []int64{50_000},
	}, engine.Clients{
		Moralis: upstream.NewMoralisClient(upstream.MoralisConfig{BaseURL: moralisSrv.URL, Timeout: 5 * time.Second}),
	}, f.store, walletTracker)

	client := notify.NewClient(notify.Config{APIBase: telegramSrv.URL, BotToken: "t", ChatID: "c"})
	notifier := notify.NewNotifier(client, notify.Formatter{})

	f.scheduler = New(cfg, eng, f.store, notifier, nil)
	return f
}

func TestDailyLog(t *testing.T) {
	d := NewDailyLog()
	d.Record(10, 2, 1)
	d.Record(5, 0, 3)

	snap := d.Snapshot()
	assert.Equal(t, DailySnapshot{Scanned: 15, Accepted: 2, NearMiss: 4}, snap)

	flushed := d.Flush()
	assert.Equal(t, snap, flushed)
	assert.Equal(t, DailySnapshot{}, d.Snapshot())
}

func TestRequestScanCoalesces(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	assert.True(t, f.scheduler.RequestScan())
	// Second request while one is pending is dropped, not queued.
	assert.False(t, f.scheduler.RequestScan())
}

func TestRunExecutesBatchesAndSaves(t *testing.T) {
	f := newFixture(t, Config{PollInterval: 30 * time.Millisecond, TopGainers: 3})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.scheduler.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.scheduler.Stats().BatchesRun >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	// Initial batch plus at least two ticks hit the listing endpoint.
	assert.GreaterOrEqual(t, f.moralisCalls.Load(), int64(3))
	// Shutdown leaves a saved store behind.
	fresh := state.New(f.stateDir)
	require.NoError(t, fresh.Load())
}

func TestRunServicesManualScan(t *testing.T) {
	f := newFixture(t, Config{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.scheduler.Run(ctx)
		close(done)
	}()

	// Wait out the immediate startup batch, then enqueue.
	require.Eventually(t, func() bool {
		return f.scheduler.Stats().BatchesRun >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, f.scheduler.RequestScan())
	require.Eventually(t, func() bool {
		return f.scheduler.Stats().BatchesRun >= 2
	}, 2*time.Second, 10*time.Millisecond)

	stats := f.scheduler.Stats()
	assert.Equal(t, int64(1), stats.ManualScans)

	cancel()
	<-done
}

func TestRunConsumesStreamEvents(t *testing.T) {
	f := newFixture(t, Config{PollInterval: time.Hour})
	events := make(chan upstream.TokenEvent, 1)
	f.scheduler.streamCh = events

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.scheduler.Run(ctx)
		close(done)
	}()

	events <- upstream.TokenEvent{Mint: "A1", Symbol: "MOON"}
	require.Eventually(t, func() bool {
		return f.scheduler.Stats().StreamEvents == 1
	}, 2*time.Second, 10*time.Millisecond)
	// The event triggered an extra batch on top of the startup one.
	require.Eventually(t, func() bool {
		return f.scheduler.Stats().BatchesRun >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestMaybeSummaryFiresOncePerMinute(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 30, 0, time.Local)
	f := newFixture(t, Config{PollInterval: time.Hour, SummaryTimes: []string{"09:00", "21:00"}, TopGainers: 3})
	f.scheduler.daily.Record(12, 2, 1)

	f.scheduler.maybeSummary(now)
	select {
	case text := <-f.telegramTexts:
		assert.Contains(t, text, "DAILY SUMMARY")
		assert.Contains(t, text, "Scanned:* 12")
	case <-time.After(2 * time.Second):
		t.Fatal("summary not delivered")
	}

	// Counters were flushed.
	assert.Equal(t, DailySnapshot{}, f.scheduler.daily.Snapshot())

	// Same minute again: nothing new.
	f.scheduler.maybeSummary(now.Add(10 * time.Second))
	assert.Equal(t, int64(1), f.telegramCalls.Load())

	// Next configured time fires fresh.
	f.scheduler.daily.Record(3, 1, 0)
	f.scheduler.maybeSummary(time.Date(2026, 8, 29, 21, 0, 5, 0, time.Local))
	select {
	case text := <-f.telegramTexts:
		assert.Contains(t, text, "Scanned:* 3")
	case <-time.After(2 * time.Second):
		t.Fatal("second summary not delivered")
	}
}

func TestMaybeSummaryOffScheduleIsQuiet(t *testing.T) {
	f := newFixture(t, Config{PollInterval: time.Hour, SummaryTimes: []string{"09:00"}})
	f.scheduler.daily.Record(5, 1, 0)

	f.scheduler.maybeSummary(time.Date(2026, 8, 29, 13, 37, 0, 0, time.Local))
	assert.Equal(t, int64(0), f.telegramCalls.Load())
	assert.Equal(t, DailySnapshot{Scanned: 5, Accepted: 1}, f.scheduler.daily.Snapshot())
}
