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

func newTestMoralis(t *testing.T, handler http.HandlerFunc) *MoralisClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewMoralisClient(MoralisConfig{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		PageLimit: 100,
		Timeout:   5 * time.Second,
	})
}

func TestGraduatedPage(t *testing.T) {
	client := newTestMoralis(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "/token/mainnet/exchange/pumpfun/graduated", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"tokenAddress":"A1","name":"Alpha","symbol":"ALPHA",
			 "fullyDilutedValuation":"70000","liquidity":9000,
			 "holders":100,"priceUsd":"0.00007",
			 "createdAt":"2025-01-02T03:04:05Z"},
			{"tokenAddress":"","name":"no-address"},
			{"tokenAddress":"B2","fullyDilutedValuation":null,"holders":"12"}
		]}`))
	})

	listings, err := client.GraduatedPage(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	a := listings[0]
	assert.Equal(t, "A1", a.TokenAddress)
	assert.Equal(t, "ALPHA", a.Symbol)
	assert.Equal(t, "70000", a.FDV.String())
	assert.Equal(t, "9000", a.Liquidity.String())
	assert.Equal(t, 100, a.Holders)
	assert.Equal(t, 2025, a.CreatedAt.Year())

	// Null/stringy fields degrade to zero values, never an error.
	b := listings[1]
	assert.True(t, b.FDV.IsZero())
	assert.Equal(t, 12, b.Holders)

	assert.Equal(t, int64(1), client.Stats().PageCount)
}

func TestGraduatedPage_RetryOn500(t *testing.T) {
	calls := 0
	client := newTestMoralis(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"result":[{"tokenAddress":"A1"}]}`))
	})

	listings, err := client.GraduatedPage(context.Background())
	require.NoError(t, err)
	assert.Len(t, listings, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(1), client.Stats().ErrorCount)
}

func TestGraduatedPage_NotFound(t *testing.T) {
	client := newTestMoralis(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GraduatedPage(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGraduatedPage_MalformedBody(t *testing.T) {
	client := newTestMoralis(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result": not-json`))
	})

	_, err := client.GraduatedPage(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindParse, ErrKind(err))
}

func TestBondingPage(t *testing.T) {
	client := newTestMoralis(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token/mainnet/exchange/pumpfun/bonding", r.URL.Path)
		w.Write([]byte(`{"result":[{"tokenAddress":"C3","symbol":"GAMMA"}]}`))
	})

	listings, err := client.BondingPage(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "C3", listings[0].TokenAddress)
}

func TestStats_LatencyAveragesAcrossPages(t *testing.T) {
	var calls int
	client := newTestMoralis(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			time.Sleep(120 * time.Millisecond)
		}
		w.Write([]byte(`{"result":[]}`))
	})

	_, err := client.GraduatedPage(context.Background())
	require.NoError(t, err)
	slow := client.Stats().AvgLatencyMs
	assert.GreaterOrEqual(t, slow, int64(100))

	_, err = client.GraduatedPage(context.Background())
	require.NoError(t, err)

	// The second page returns immediately, so a last-value counter would
	// collapse to near zero. The mean stays around half the slow sample.
	avg := client.Stats().AvgLatencyMs
	assert.GreaterOrEqual(t, avg, slow/2-10)
	assert.Less(t, avg, slow)
	assert.Equal(t, int64(2), client.Stats().PageCount)
}
