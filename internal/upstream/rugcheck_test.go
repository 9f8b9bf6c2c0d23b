package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRugCheck(t *testing.T, handler http.HandlerFunc) *RugCheckClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRugCheckClient(RugCheckConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
}

func TestReport_Clean(t *testing.T) {
	client := newTestRugCheck(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/A1/report", r.URL.Path)
		w.Write([]byte(`{
			"score": 4200,
			"score_normalised": 85,
			"totalHolders": 340,
			"risks": [],
			"markets": [{"lp": {"lpLocked": true, "lpLockedUSD": "8200", "lpLockedPct": 0.97}}],
			"topHolders": [{"pct": 12.0}, {"pct": 6.5}]
		}`))
	})

	report, err := client.Report(context.Background(), "A1")
	require.NoError(t, err)
	assert.True(t, report.Known)
	assert.Equal(t, 85, report.Score)
	assert.False(t, report.Honeypot)
	assert.True(t, report.LPLocked)
	assert.Equal(t, 340, report.TotalHolders)
	assert.Equal(t, []float64{12.0, 6.5}, report.TopHolderPcts)
	assert.Equal(t, "8200", report.LPLockedUSD.String())
}

func TestReport_HoneypotRisk(t *testing.T) {
	client := newTestRugCheck(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"score_normalised": 90,
			"risks": [{"name": "Honeypot pattern", "description": "sell blocked"}]
		}`))
	})

	report, err := client.Report(context.Background(), "A1")
	require.NoError(t, err)
	assert.True(t, report.Honeypot)
}

func TestReport_UnlockedLiquidityRisk(t *testing.T) {
	client := newTestRugCheck(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"score_normalised": 70,
			"risks": [{"name": "Large amount of unlocked liquidity"}]
		}`))
	})

	report, err := client.Report(context.Background(), "A1")
	require.NoError(t, err)
	assert.False(t, report.LPLocked)
}

func TestReport_UnlockedViaMarkets(t *testing.T) {
	client := newTestRugCheck(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"markets": [{"lp": {"lpLocked": false}}]}`))
	})

	report, err := client.Report(context.Background(), "A1")
	require.NoError(t, err)
	assert.False(t, report.LPLocked)
}

func TestReport_ScoreClamped(t *testing.T) {
	client := newTestRugCheck(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"score": 25000}`))
	})

	report, err := client.Report(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
}

func TestReport_FailureReturnsSentinel(t *testing.T) {
	client := newTestRugCheck(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	report, err := client.Report(context.Background(), "A1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	// Sentinel must be safe to use: no honeypot evidence, LP assumed locked.
	assert.False(t, report.Known)
	assert.False(t, report.Honeypot)
	assert.True(t, report.LPLocked)
	assert.Equal(t, 0, report.Score)
}
