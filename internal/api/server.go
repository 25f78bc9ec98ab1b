// Package api serves the HTTP read side: health, buffered records, and the
// diagnostic probes. Handlers only read the in-memory store; no request can
// mutate pipeline state.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"token-radar/internal/domain"
	"token-radar/internal/observability"
	"token-radar/internal/poller"
	"token-radar/internal/storage"
	"token-radar/internal/store"
	"token-radar/internal/upstream"
)

// ReadLimit caps the records returned by the list endpoints.
const ReadLimit = 100

// Server holds the read-side dependencies.
type Server struct {
	buffers         *store.Buffers
	scheduler       *poller.Scheduler
	pairsResolver   *upstream.Resolver
	tradesResolver  *upstream.Resolver
	archive         storage.ArchiveStore // optional
	pairThresholds  domain.PairThresholds
	tradeThresholds domain.TradeThresholds
	started         time.Time
	logger          *log.Logger
}

// Options configures the API server.
type Options struct {
	Buffers         *store.Buffers
	Scheduler       *poller.Scheduler
	PairsResolver   *upstream.Resolver
	TradesResolver  *upstream.Resolver
	Archive         storage.ArchiveStore
	PairThresholds  domain.PairThresholds
	TradeThresholds domain.TradeThresholds
	Logger          *log.Logger
}

// New creates the API server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		buffers:         opts.Buffers,
		scheduler:       opts.Scheduler,
		pairsResolver:   opts.PairsResolver,
		tradesResolver:  opts.TradesResolver,
		archive:         opts.Archive,
		pairThresholds:  opts.PairThresholds,
		tradeThresholds: opts.TradeThresholds,
		started:         time.Now(),
		logger:          logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/new-pairs", s.handleNewPairs)
	mux.HandleFunc("/whales", s.handleWhales)
	mux.HandleFunc("/archive/new-pairs", s.handleArchivePairs)
	mux.HandleFunc("/archive/whales", s.handleArchiveWhales)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/_probe/pairs", s.handleProbe(domain.CategoryPairs))
	mux.HandleFunc("/_probe/trades", s.handleProbe(domain.CategoryTrades))
	mux.HandleFunc("/_debug", s.handleDebug)
	mux.Handle("/metrics", observability.Handler())
	return mux
}

// HealthResponse is the JSON body for GET /.
type HealthResponse struct {
	Status          string                 `json:"status"`
	Connected       bool                   `json:"connected"`
	Uptime          string                 `json:"uptime"`
	PairBufferSize  int                    `json:"pair_buffer_size"`
	TradeBufferSize int                    `json:"trade_buffer_size"`
	PairThresholds  domain.PairThresholds  `json:"pair_thresholds"`
	TradeThresholds domain.TradeThresholds `json:"trade_thresholds"`
	PairsEndpoint   string                 `json:"pairs_endpoint,omitempty"`
	TradesEndpoint  string                 `json:"trades_endpoint,omitempty"`
	LastPollAt      *time.Time             `json:"last_poll_at,omitempty"`
	LastError       string                 `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	pairsLen, tradesLen := s.buffers.Sizes()
	resp := HealthResponse{
		Status:          "ok",
		Uptime:          time.Since(s.started).String(),
		PairBufferSize:  pairsLen,
		TradeBufferSize: tradesLen,
		PairThresholds:  s.pairThresholds,
		TradeThresholds: s.tradeThresholds,
		PairsEndpoint:   s.pairsResolver.Pinned(),
		TradesEndpoint:  s.tradesResolver.Pinned(),
	}

	for _, st := range s.scheduler.Snapshot() {
		if !st.LastPollAt.IsZero() && (resp.LastPollAt == nil || st.LastPollAt.After(*resp.LastPollAt)) {
			t := st.LastPollAt
			resp.LastPollAt = &t
		}
		if st.LastError != "" {
			resp.LastError = st.LastError
		}
		if st.LastOutcome == poller.OutcomeSuccess {
			resp.Connected = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// listResponse wraps the list endpoints' payloads.
type listResponse struct {
	Data any `json:"data"`
}

func (s *Server) handleNewPairs(w http.ResponseWriter, r *http.Request) {
	pairs := s.buffers.RecentPairs(ReadLimit)
	if pairs == nil {
		pairs = []domain.PairRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Data: pairs})
}

func (s *Server) handleWhales(w http.ResponseWriter, r *http.Request) {
	minUsd := s.tradeThresholds.MinTradeUsd
	if q := r.URL.Query().Get("min_buy_usd"); q != "" {
		if v, err := strconv.ParseFloat(q, 64); err == nil && v >= 0 {
			minUsd = v
		}
	}

	// Scan the whole buffer; the floor may exclude most of the newest entries.
	_, tradesLen := s.buffers.Sizes()
	trades := s.buffers.RecentTrades(tradesLen)
	out := make([]domain.TradeRecord, 0, ReadLimit)
	for _, t := range trades {
		if t.AmountUsd < minUsd {
			continue
		}
		out = append(out, t)
		if len(out) == ReadLimit {
			break
		}
	}
	writeJSON(w, http.StatusOK, listResponse{Data: out})
}

// handleArchivePairs serves recent pair listings from the durable archive,
// which retains history beyond the ring buffer's horizon.
func (s *Server) handleArchivePairs(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive not configured"})
		return
	}
	pairs, err := s.archive.RecentPairs(r.Context(), ReadLimit)
	if err != nil {
		s.logger.Printf("archive pairs read: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive read failed"})
		return
	}
	if pairs == nil {
		pairs = []domain.PairRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Data: pairs})
}

func (s *Server) handleArchiveWhales(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive not configured"})
		return
	}

	minUsd := s.tradeThresholds.MinTradeUsd
	if q := r.URL.Query().Get("min_buy_usd"); q != "" {
		if v, err := strconv.ParseFloat(q, 64); err == nil && v >= 0 {
			minUsd = v
		}
	}

	trades, err := s.archive.RecentTrades(r.Context(), minUsd, ReadLimit)
	if err != nil {
		s.logger.Printf("archive trades read: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive read failed"})
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Data: trades})
}

// StatusResponse is the JSON body for GET /status.
type StatusResponse struct {
	Status     string                          `json:"status"`
	Uptime     string                          `json:"uptime"`
	Categories map[domain.Category]poller.State `json:"categories"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:     "running",
		Uptime:     time.Since(s.started).String(),
		Categories: s.scheduler.Snapshot(),
	})
}

// handleProbe serves the latest raw upstream payload for a category.
// Diagnostic only, not part of the stable contract.
func (s *Server) handleProbe(cat domain.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sample := s.buffers.RawSample(cat)
		if sample == nil {
			writeJSON(w, http.StatusOK, map[string]string{"note": "no sample captured yet"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(sample)
	}
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pairs_probe_history":  s.pairsResolver.History(),
		"trades_probe_history": s.tradesResolver.History(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing to do but log.
		log.Printf("encode response: %v", err)
	}
}
