package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "collector.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIndexerFetcher(t *testing.T) {
	var gotAuth, gotWindow string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotWindow = r.URL.Query().Get("window")
		assert.Equal(t, "/api/v1/stats", r.URL.Path)
		w.Write([]byte(`{"volume":"1250.5","wallets":12,"trades":40}`))
	}))
	defer srv.Close()

	f := NewIndexerFetcher(srv.URL, "secret", "")
	stats, err := f.FetchStats(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "3600", gotWindow)
	assert.True(t, stats.Volume.Equal(decimal.RequireFromString("1250.5")))
	assert.Equal(t, 12, stats.Wallets)
	assert.Equal(t, 40, stats.Trades)
}

func TestIndexerFetcherErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"volume":`))
		},
		"negative": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"volume":5,"wallets":-1,"trades":0}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewIndexerFetcher(srv.URL, "", "").FetchStats(context.Background(), time.Hour)
			assert.Error(t, err)
		})
	}
}

func TestCollectorFallback(t *testing.T) {
	primary := &MockFetcher{Err: errors.New("indexer down")}
	fallback := &MockFetcher{Stats: model.ActivityStats{Trades: 3, Wallets: 2, Volume: decimal.NewFromInt(7)}}
	c := NewCollector(primary, fallback)

	stats, err := c.Stats(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Trades)
	assert.Equal(t, 1, primary.Calls)
	assert.Equal(t, 1, fallback.Calls)

	primary.Err = nil
	primary.Stats = model.ActivityStats{Trades: 9}
	stats, err = c.Stats(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Trades)
	assert.Equal(t, 1, fallback.Calls)
}

func TestCollectorBothFail(t *testing.T) {
	c := NewCollector(&MockFetcher{Err: errors.New("a")}, &MockFetcher{Err: errors.New("b")})
	_, err := c.Stats(context.Background(), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock")

	_, err = NewCollector(nil, nil).Stats(context.Background(), time.Hour)
	assert.Error(t, err)
}

func TestStoreFetcherAndTrend(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record := func(kind model.ActivityKind, wallet string, quote int64, ago time.Duration) {
		require.NoError(t, st.RecordActivity(ctx, model.Activity{
			Kind: kind, Wallet: wallet, Asset: "SNT1", Side: model.SideBuy,
			BaseAmount: decimal.NewFromInt(1), QuoteAmount: decimal.NewFromInt(quote), At: now.Add(-ago),
		}))
	}
	record(model.ActivityTrade, "w1", 10, 10*time.Minute)
	record(model.ActivityTrade, "w2", 5, 20*time.Minute)
	record(model.ActivityTrade, "w1", 20, 2*time.Hour+10*time.Minute)
	record(model.ActivityWalletConnect, "w1", 0, 5*time.Minute)
	record(model.ActivityWalletConnect, "w3", 0, 50*time.Minute)

	f := NewStoreFetcher(st)
	f.Now = func() time.Time { return now }
	stats, err := f.FetchStats(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Trades)
	assert.Equal(t, 2, stats.Wallets)
	assert.True(t, stats.Volume.Equal(decimal.NewFromInt(15)))

	c := NewCollector(f, nil).WithActivity(st, TrendConfig{Width: time.Hour, Buckets: 3, SMAPeriod: 2, RSIPeriod: 2})
	c.WithClock(func() time.Time { return now })
	tr, err := c.Trend(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 0, 15}, tr.Buckets)
	assert.InDelta(t, 7.5, tr.SMA, 1e-9)
	assert.Equal(t, 20.0, tr.Peak)
	assert.Equal(t, 0.0, tr.Trough)
	// loss 20 then gain 15 over two changes
	assert.InDelta(t, 100.0-100.0/(1.0+15.0/20.0), tr.RSI, 1e-9)
}

func TestTrendWithoutStore(t *testing.T) {
	_, err := NewCollector(&MockFetcher{}, nil).Trend(context.Background())
	assert.Error(t, err)
}
