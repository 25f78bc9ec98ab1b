package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-radar/internal/domain"
	"token-radar/internal/poller"
	"token-radar/internal/store"
	"token-radar/internal/upstream"
)

func newTestServer(buffers *store.Buffers) *Server {
	client := upstream.NewClient("", "")
	return New(Options{
		Buffers:         buffers,
		Scheduler:       poller.New(poller.Config{}, nil, nil, nil),
		PairsResolver:   upstream.NewResolver("pairs", nil, client, nil),
		TradesResolver:  upstream.NewResolver("trades", nil, client, nil),
		PairThresholds:  domain.PairThresholds{MinLiquidityUsd: 5000},
		TradeThresholds: domain.TradeThresholds{MinTradeUsd: 10000},
	})
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	buffers := store.NewBuffers(10)
	buffers.PushPair(domain.PairRecord{DedupKey: "p1"})
	s := newTestServer(buffers)

	rec := doGet(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.PairBufferSize)
	assert.Equal(t, 5000.0, resp.PairThresholds.MinLiquidityUsd)
	assert.False(t, resp.Connected, "no successful poll yet")
}

func TestHandleHealth_UnknownPathIs404(t *testing.T) {
	s := newTestServer(store.NewBuffers(10))
	rec := doGet(t, s.Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleNewPairs_NewestFirst(t *testing.T) {
	buffers := store.NewBuffers(10)
	for i := 0; i < 3; i++ {
		buffers.PushPair(domain.PairRecord{DedupKey: fmt.Sprintf("p%d", i), BaseSymbol: fmt.Sprintf("S%d", i)})
	}
	s := newTestServer(buffers)

	rec := doGet(t, s.Handler(), "/new-pairs")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.PairRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "S2", resp.Data[0].BaseSymbol)
	assert.Equal(t, "S0", resp.Data[2].BaseSymbol)
}

func TestHandleNewPairs_EmptyBufferIsEmptyArray(t *testing.T) {
	s := newTestServer(store.NewBuffers(10))
	rec := doGet(t, s.Handler(), "/new-pairs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestHandleWhales_DefaultFloor(t *testing.T) {
	buffers := store.NewBuffers(10)
	buffers.PushTrade(domain.TradeRecord{DedupKey: "t1", AmountUsd: 50000})
	buffers.PushTrade(domain.TradeRecord{DedupKey: "t2", AmountUsd: 12000})
	s := newTestServer(buffers)

	rec := doGet(t, s.Handler(), "/whales")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.TradeRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestHandleWhales_QueryOverride(t *testing.T) {
	buffers := store.NewBuffers(10)
	buffers.PushTrade(domain.TradeRecord{DedupKey: "t1", AmountUsd: 50000})
	buffers.PushTrade(domain.TradeRecord{DedupKey: "t2", AmountUsd: 12000})
	s := newTestServer(buffers)

	rec := doGet(t, s.Handler(), "/whales?min_buy_usd=20000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.TradeRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "t1", resp.Data[0].DedupKey)
}

func TestHandleWhales_ScansWholeBufferAboveDefaultCapacity(t *testing.T) {
	// Matching trades buried behind a run of small ones must still be found,
	// regardless of how large the buffer was configured.
	buffers := store.NewBuffers(300)
	for i := 0; i < 150; i++ {
		buffers.PushTrade(domain.TradeRecord{DedupKey: fmt.Sprintf("big%d", i), AmountUsd: 20000})
	}
	for i := 0; i < 150; i++ {
		buffers.PushTrade(domain.TradeRecord{DedupKey: fmt.Sprintf("small%d", i), AmountUsd: 5})
	}
	s := newTestServer(buffers)

	rec := doGet(t, s.Handler(), "/whales?min_buy_usd=10000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.TradeRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, ReadLimit, "older matching trades must be served up to the read limit")
}

func TestHandleWhales_BadQueryFallsBackToConfigured(t *testing.T) {
	buffers := store.NewBuffers(10)
	buffers.PushTrade(domain.TradeRecord{DedupKey: "t1", AmountUsd: 12000})
	s := newTestServer(buffers)

	rec := doGet(t, s.Handler(), "/whales?min_buy_usd=banana")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.TradeRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1, "unparsable override keeps the configured floor")
}

// stubArchive serves canned records for the archive endpoints.
type stubArchive struct {
	pairs  []domain.PairRecord
	trades []domain.TradeRecord
	err    error
}

func (a *stubArchive) InsertPairs(ctx context.Context, recs []domain.PairRecord) error { return nil }

func (a *stubArchive) InsertTrades(ctx context.Context, recs []domain.TradeRecord) error { return nil }

func (a *stubArchive) RecentPairs(ctx context.Context, limit int) ([]domain.PairRecord, error) {
	return a.pairs, a.err
}

func (a *stubArchive) RecentTrades(ctx context.Context, minUsd float64, limit int) ([]domain.TradeRecord, error) {
	if a.err != nil {
		return nil, a.err
	}
	var out []domain.TradeRecord
	for _, t := range a.trades {
		if t.AmountUsd >= minUsd {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestHandleArchive_NotConfigured(t *testing.T) {
	s := newTestServer(store.NewBuffers(10))

	rec := doGet(t, s.Handler(), "/archive/new-pairs")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doGet(t, s.Handler(), "/archive/whales")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleArchivePairs(t *testing.T) {
	client := upstream.NewClient("", "")
	s := New(Options{
		Buffers:        store.NewBuffers(10),
		Scheduler:      poller.New(poller.Config{}, nil, nil, nil),
		PairsResolver:  upstream.NewResolver("pairs", nil, client, nil),
		TradesResolver: upstream.NewResolver("trades", nil, client, nil),
		Archive:        &stubArchive{pairs: []domain.PairRecord{{DedupKey: "pk1", BaseSymbol: "AAA"}}},
	})

	rec := doGet(t, s.Handler(), "/archive/new-pairs")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.PairRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "AAA", resp.Data[0].BaseSymbol)
}

func TestHandleArchiveWhales_FloorOverride(t *testing.T) {
	client := upstream.NewClient("", "")
	s := New(Options{
		Buffers:        store.NewBuffers(10),
		Scheduler:      poller.New(poller.Config{}, nil, nil, nil),
		PairsResolver:  upstream.NewResolver("pairs", nil, client, nil),
		TradesResolver: upstream.NewResolver("trades", nil, client, nil),
		Archive: &stubArchive{trades: []domain.TradeRecord{
			{DedupKey: "t1", AmountUsd: 50000},
			{DedupKey: "t2", AmountUsd: 12000},
		}},
		TradeThresholds: domain.TradeThresholds{MinTradeUsd: 10000},
	})

	rec := doGet(t, s.Handler(), "/archive/whales?min_buy_usd=20000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.TradeRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "t1", resp.Data[0].DedupKey)
}

func TestHandleArchive_ReadFailure(t *testing.T) {
	client := upstream.NewClient("", "")
	s := New(Options{
		Buffers:        store.NewBuffers(10),
		Scheduler:      poller.New(poller.Config{}, nil, nil, nil),
		PairsResolver:  upstream.NewResolver("pairs", nil, client, nil),
		TradesResolver: upstream.NewResolver("trades", nil, client, nil),
		Archive:        &stubArchive{err: fmt.Errorf("connection refused")},
	})

	rec := doGet(t, s.Handler(), "/archive/new-pairs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = doGet(t, s.Handler(), "/archive/whales")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(store.NewBuffers(10))
	rec := doGet(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestHandleProbe(t *testing.T) {
	buffers := store.NewBuffers(10)
	s := newTestServer(buffers)

	rec := doGet(t, s.Handler(), "/_probe/pairs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no sample captured yet")

	buffers.SetRawSample(domain.CategoryPairs, []byte(`{"data":[{"raw":true}]}`))
	rec = doGet(t, s.Handler(), "/_probe/pairs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"raw":true}]}`, rec.Body.String())
}

func TestHandleDebug(t *testing.T) {
	s := newTestServer(store.NewBuffers(10))
	rec := doGet(t, s.Handler(), "/_debug")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "pairs_probe_history")
	assert.Contains(t, resp, "trades_probe_history")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(store.NewBuffers(10))
	rec := doGet(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReflectsSchedulerState(t *testing.T) {
	// A scheduler that has completed a successful poll flips connected.
	buffers := store.NewBuffers(10)
	client := upstream.NewClient("", "")

	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer upstreamSrv.Close()

	cat := &poller.Category{
		Name:     domain.CategoryPairs,
		Resolver: upstream.NewResolver("pairs", []string{upstreamSrv.URL}, client, nil),
		Fetcher:  client,
		Ingest:   func(ctx context.Context, body []byte) {},
	}
	sched := poller.New(poller.Config{Tick: 5 * time.Millisecond}, nil, []*poller.Category{cat}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	require.Eventually(t, func() bool {
		st := sched.Snapshot()[domain.CategoryPairs]
		return st.LastOutcome == poller.OutcomeSuccess
	}, 2*time.Second, 10*time.Millisecond)

	s := New(Options{
		Buffers:        buffers,
		Scheduler:      sched,
		PairsResolver:  cat.Resolver.(*upstream.Resolver),
		TradesResolver: upstream.NewResolver("trades", nil, client, nil),
	})

	rec := doGet(t, s.Handler(), "/")
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Connected)
	assert.NotNil(t, resp.LastPollAt)
}
