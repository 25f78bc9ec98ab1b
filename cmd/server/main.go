// Package main runs the token radar service: REST polling (and optionally a
// WebSocket feed) against an unstable token-data upstream, a dedup/filter
// pipeline into in-memory ring buffers, and the HTTP read API on top.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"token-radar/internal/api"
	"token-radar/internal/dedup"
	"token-radar/internal/domain"
	"token-radar/internal/pipeline"
	"token-radar/internal/poller"
	"token-radar/internal/storage"
	pgstore "token-radar/internal/storage/postgres"
	"token-radar/internal/store"
	"token-radar/internal/upstream"
)

// Default candidate endpoint lists, tried in priority order. The upstream's
// routes are undocumented and have moved between revisions; keyless
// DexScreener fallbacks come last.
var (
	defaultPairsURLs = []string{
		"https://public-api.birdeye.so/defi/v2/tokens/new_listing?limit=20",
		"https://public-api.birdeye.so/defi/tokens/new_listing?limit=20",
		"https://api.dexscreener.com/latest/dex/search?q=solana",
	}
	defaultTradesURLs = []string{
		"https://public-api.birdeye.so/defi/v3/txs/recent?tx_type=swap&limit=50",
		"https://public-api.birdeye.so/defi/txs/recent?limit=50",
		"https://public-api.birdeye.so/trader/txs/seek_by_time?limit=50",
	}
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	addr := flag.String("addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	apiKey := flag.String("api-key", os.Getenv("BIRDEYE_API_KEY"), "Birdeye API key")
	chain := flag.String("chain", envOr("CHAIN", "solana"), "Chain sent as x-chain header")
	pairsURLs := flag.String("pairs-urls", os.Getenv("PAIRS_URLS"), "Comma-separated candidate URLs for new-pair polling")
	tradesURLs := flag.String("trades-urls", os.Getenv("TRADES_URLS"), "Comma-separated candidate URLs for trade polling")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("BIRDEYE_WS_ENDPOINT"), "Optional WebSocket trade feed endpoint")
	pollInterval := flag.Duration("poll-interval", envDuration("POLL_INTERVAL", 30*time.Second), "Base poll interval per category")
	tick := flag.Duration("tick", envDuration("SCHED_TICK", 5*time.Second), "Scheduler driving tick")
	initialBackoff := flag.Duration("initial-backoff", envDuration("INITIAL_BACKOFF", 30*time.Second), "Backoff after first rate limit")
	maxBackoff := flag.Duration("max-backoff", envDuration("MAX_BACKOFF", 5*time.Minute), "Rate-limit backoff ceiling")
	minLiquidity := flag.Float64("min-liquidity", envFloat("MIN_LIQUIDITY_USD", 5000), "Minimum pair liquidity in USD")
	minVolume24h := flag.Float64("min-volume-24h", envFloat("MIN_VOLUME_24H_USD", 0), "Minimum pair 24h volume in USD")
	minTrades24h := flag.Float64("min-trades-24h", envFloat("MIN_TRADES_24H", 0), "Minimum pair 24h trade count")
	minAgeMinutes := flag.Float64("min-age-minutes", envFloat("MIN_AGE_MINUTES", 0), "Minimum pair age in minutes (0 disables)")
	minTradeUsd := flag.Float64("min-trade-usd", envFloat("MIN_TRADE_USD", 10000), "Minimum whale trade notional in USD")
	bufferCapacity := flag.Int("buffer-capacity", int(envFloat("BUFFER_CAPACITY", store.DefaultCapacity)), "Ring buffer capacity per category")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Optional PostgreSQL DSN for the record archive")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	pairCandidates := splitURLs(*pairsURLs, defaultPairsURLs)
	tradeCandidates := splitURLs(*tradesURLs, defaultTradesURLs)

	pairThresholds := domain.PairThresholds{
		MinLiquidityUsd: *minLiquidity,
		MinVolume24hUsd: *minVolume24h,
		MinTrades24h:    *minTrades24h,
		MinAgeMinutes:   *minAgeMinutes,
	}
	tradeThresholds := domain.TradeThresholds{MinTradeUsd: *minTradeUsd}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional durable archive behind the in-memory read model.
	var archive storage.ArchiveStore
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			// Prefer serving with empty data over crashing on a bad DSN.
			logger.Printf("archive disabled, postgres unavailable: %v", err)
		} else {
			defer pool.Close()
			archiveStore := pgstore.NewArchiveStore(pool)
			if err := archiveStore.EnsureSchema(ctx); err != nil {
				logger.Printf("archive disabled: %v", err)
			} else {
				archive = archiveStore
				logger.Println("archive enabled")
			}
		}
	}

	buffers := store.NewBuffers(*bufferCapacity)
	seen := dedup.NewSeenSet(*bufferCapacity * dedup.DefaultCapacityFactor)

	pipe := pipeline.New(pipeline.Options{
		Buffers:         buffers,
		Seen:            seen,
		PairThresholds:  pairThresholds,
		TradeThresholds: tradeThresholds,
		Archive:         archive,
		Logger:          log.New(os.Stdout, "[pipeline] ", log.LstdFlags|log.Lshortfile),
	})

	client := upstream.NewClient(*apiKey, *chain)
	resolverLogger := log.New(os.Stdout, "[resolver] ", log.LstdFlags|log.Lshortfile)
	pairsResolver := upstream.NewResolver("pairs", pairCandidates, client, resolverLogger)
	tradesResolver := upstream.NewResolver("trades", tradeCandidates, client, resolverLogger)

	categories := []*poller.Category{
		{
			Name:     domain.CategoryPairs,
			Resolver: pairsResolver,
			Fetcher:  client,
			Ingest: func(ctx context.Context, body []byte) {
				pipe.IngestPairs(ctx, body)
			},
			Precheck: precheck(*apiKey, pairCandidates),
		},
		{
			Name:     domain.CategoryTrades,
			Resolver: tradesResolver,
			Fetcher:  client,
			Ingest: func(ctx context.Context, body []byte) {
				pipe.IngestTrades(ctx, body)
			},
			Precheck: precheck(*apiKey, tradeCandidates),
		},
	}

	scheduler := poller.New(poller.Config{
		BaseInterval:   *pollInterval,
		Tick:           *tick,
		InitialBackoff: *initialBackoff,
		MaxBackoff:     *maxBackoff,
	}, nil, categories, log.New(os.Stdout, "[poller] ", log.LstdFlags|log.Lshortfile))

	apiServer := api.New(api.Options{
		Buffers:         buffers,
		Scheduler:       scheduler,
		PairsResolver:   pairsResolver,
		TradesResolver:  tradesResolver,
		Archive:         archive,
		PairThresholds:  pairThresholds,
		TradeThresholds: tradeThresholds,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: apiServer.Handler(),
	}

	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	// Optional WebSocket trade feed into the same pipeline.
	if *wsEndpoint != "" {
		wsLogger := log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lshortfile)
		source := upstream.NewWSTradeSource(*wsEndpoint, *apiKey, nil, wsLogger)
		go func() {
			for rec := range source.Subscribe(ctx) {
				pipe.IngestTradeRecord(ctx, rec)
			}
		}()
		logger.Printf("WebSocket trade feed enabled: %s", *wsEndpoint)
	}

	// Run the scheduler in background.
	schedErr := make(chan error, 1)
	go func() {
		schedErr <- scheduler.Run(ctx)
	}()

	logger.Printf("Listening on %s", *addr)
	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("HTTP server error: %v", err)
	}

	cancel()
	if err := <-schedErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("Scheduler error: %v", err)
	}
	close(done)

	logger.Println("Shutdown complete")
}

// precheck vetoes a poll cycle when the upstream requires a key and none is
// configured. Categories with at least one keyless candidate still run.
func precheck(apiKey string, candidates []string) func() error {
	if apiKey != "" {
		return nil
	}
	for _, url := range candidates {
		if !strings.Contains(url, "birdeye") {
			return nil
		}
	}
	return func() error { return upstream.ErrMissingAPIKey }
}

// splitURLs parses a comma-separated URL list, falling back to defaults.
func splitURLs(s string, defaults []string) []string {
	if s == "" {
		return defaults
	}
	var urls []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			urls = append(urls, part)
		}
	}
	if len(urls) == 0 {
		return defaults
	}
	return urls
}

// envOr returns the env value or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envFloat returns the env value parsed as float64 or def.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// envDuration returns the env value parsed as duration or def.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
