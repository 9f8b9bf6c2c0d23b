package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestMarkSeen(t *testing.T) {
	s := New(t.TempDir())

	assert.False(t, s.Seen("A1"))
	assert.True(t, s.MarkSeen("A1"))
	assert.True(t, s.Seen("A1"))
	// Second mark is a no-op.
	assert.False(t, s.MarkSeen("A1"))
}

func TestTrackAndUpdate(t *testing.T) {
	s := New(t.TempDir())
	s.Track("A1", "ALPHA", usd(70_000))

	rec := s.Tracked("A1")
	require.NotNil(t, rec)
	assert.Equal(t, "ALPHA", rec.Symbol)
	assert.True(t, rec.Gain().IsZero())

	assert.True(t, s.UpdateValuation("A1", usd(150_000)))
	rec = s.Tracked("A1")
	assert.Equal(t, "80000", rec.Gain().String())
	assert.InDelta(t, 150.0/70.0, rec.Multiple(), 1e-9)

	assert.False(t, s.UpdateValuation("unknown", usd(1)))
	assert.Nil(t, s.Tracked("unknown"))
}

func TestRecordMilestoneIdempotent(t *testing.T) {
	s := New(t.TempDir())
	s.Track("A1", "ALPHA", usd(70_000))

	assert.True(t, s.RecordMilestone("A1", 50_000))
	assert.False(t, s.RecordMilestone("A1", 50_000))
	assert.True(t, s.RecordMilestone("A1", 100_000))
	assert.False(t, s.RecordMilestone("missing", 50_000))

	rec := s.Tracked("A1")
	assert.Equal(t, []int64{50_000, 100_000}, rec.Milestones)
}

func TestMarkSoarOnce(t *testing.T) {
	s := New(t.TempDir())
	s.Track("A1", "ALPHA", usd(70_000))

	assert.True(t, s.MarkSoar("A1"))
	assert.False(t, s.MarkSoar("A1"))
	assert.False(t, s.MarkSoar("missing"))
}

func TestTopGainers(t *testing.T) {
	s := New(t.TempDir())
	s.Track("A1", "ALPHA", usd(70_000))
	s.UpdateValuation("A1", usd(150_000)) // gain 80k
	s.Track("B2", "BETA", usd(30_000))
	s.UpdateValuation("B2", usd(300_000)) // gain 270k
	s.Track("C3", "GAMMA", usd(50_000))
	s.UpdateValuation("C3", usd(40_000)) // gain -10k

	top := s.TopGainers(2)
	require.Len(t, top, 2)
	assert.Equal(t, "B2", top[0].Address)
	assert.Equal(t, "A1", top[1].Address)
}

func TestWalletBuys(t *testing.T) {
	s := New(t.TempDir())
	s.AppendBuy("w1", WalletBuy{Token: "A1", EntryFDV: usd(70_000), LastFDV: usd(70_000)})
	s.AppendBuy("w1", WalletBuy{Token: "B2", EntryFDV: usd(20_000), LastFDV: usd(20_000)})

	s.RefreshBuys("A1", usd(200_000))

	buys := s.WalletBuys("w1")
	require.Len(t, buys, 2)
	assert.Equal(t, "200000", buys[0].LastFDV.String())
	assert.Equal(t, "20000", buys[1].LastFDV.String())

	assert.Nil(t, s.WalletBuys("missing"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	s.MarkSeen("A1")
	s.Track("A1", "ALPHA", usd(70_000))
	s.UpdateValuation("A1", usd(150_000))
	s.RecordMilestone("A1", 50_000)
	s.AppendBuy("w1", WalletBuy{Token: "A1", EntryFDV: usd(70_000), LastFDV: usd(150_000)})
	require.NoError(t, s.Save())

	// No stray temp files left behind.
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	loaded := New(dir)
	require.NoError(t, loaded.Load())

	assert.True(t, loaded.Seen("A1"))
	rec := loaded.Tracked("A1")
	require.NotNil(t, rec)
	assert.Equal(t, "ALPHA", rec.Symbol)
	assert.Equal(t, "80000", rec.Gain().String())
	assert.Equal(t, []int64{50_000}, rec.Milestones)
	assert.Len(t, loaded.WalletBuys("w1"), 1)

	counts := loaded.Counts()
	assert.Equal(t, 1, counts.Seen)
	assert.Equal(t, 1, counts.Tracked)
	assert.Equal(t, 1, counts.Wallets)
}

func TestLoadMissingFilesIsEmptyState(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "never-created"))
	require.NoError(t, s.Load())
	assert.Equal(t, Counts{}, s.Counts())
}

func TestLoadCorruptFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seen_tokens.json"), []byte("{broken"), 0o644))

	s := New(dir)
	assert.Error(t, s.Load())
}
