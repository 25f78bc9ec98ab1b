// Package pipeline ties one fetched payload through
// extract → dedup → filter → store for each record category.
package pipeline

import (
	"context"
	"log"
	"time"

	"token-radar/internal/dedup"
	"token-radar/internal/domain"
	"token-radar/internal/extract"
	"token-radar/internal/filter"
	"token-radar/internal/observability"
	"token-radar/internal/storage"
	"token-radar/internal/store"
)

// Pipeline ingests raw upstream payloads into the in-memory buffers and,
// when configured, mirrors accepted records into the archive.
type Pipeline struct {
	buffers *store.Buffers
	seen    *dedup.SeenSet
	pairT   domain.PairThresholds
	tradeT  domain.TradeThresholds
	archive storage.ArchiveStore // optional
	logger  *log.Logger
	now     func() time.Time
}

// Options configures a Pipeline.
type Options struct {
	Buffers         *store.Buffers
	Seen            *dedup.SeenSet
	PairThresholds  domain.PairThresholds
	TradeThresholds domain.TradeThresholds
	Archive         storage.ArchiveStore
	Logger          *log.Logger
	Now             func() time.Time
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		buffers: opts.Buffers,
		seen:    opts.Seen,
		pairT:   opts.PairThresholds,
		tradeT:  opts.TradeThresholds,
		archive: opts.Archive,
		logger:  logger,
		now:     now,
	}
}

// Counts summarizes one ingest cycle.
type Counts struct {
	Fetched    int
	Stored     int
	Duplicates int
	Filtered   int
}

// IngestPairs processes one pairs payload. A body with no locatable record
// array counts as zero records for this cycle, never an error.
func (p *Pipeline) IngestPairs(ctx context.Context, body []byte) Counts {
	p.buffers.SetRawSample(domain.CategoryPairs, body)

	records := extract.FindArray(body)
	if len(records) == 0 {
		observability.RecordSchemaMiss(string(domain.CategoryPairs))
		return Counts{}
	}

	counts := Counts{Fetched: len(records)}
	now := p.now()
	var accepted []domain.PairRecord

	for _, raw := range records {
		rec := extract.ExtractPair(raw)
		if !p.seen.IsNew(domain.CategoryPairs, rec.DedupKey) {
			counts.Duplicates++
			continue
		}
		p.seen.MarkSeen(domain.CategoryPairs, rec.DedupKey)
		if !filter.PassPair(rec, p.pairT, now) {
			counts.Filtered++
			continue
		}
		p.buffers.PushPair(rec)
		accepted = append(accepted, rec)
		counts.Stored++
	}

	p.archivePairs(ctx, accepted)
	p.finishCycle(domain.CategoryPairs, counts)
	return counts
}

// IngestTrades processes one trades payload.
func (p *Pipeline) IngestTrades(ctx context.Context, body []byte) Counts {
	p.buffers.SetRawSample(domain.CategoryTrades, body)

	records := extract.FindArray(body)
	if len(records) == 0 {
		observability.RecordSchemaMiss(string(domain.CategoryTrades))
		return Counts{}
	}

	counts := Counts{Fetched: len(records)}
	var accepted []domain.TradeRecord

	for _, raw := range records {
		rec, verdict := p.admitTrade(raw)
		switch verdict {
		case admitDuplicate:
			counts.Duplicates++
		case admitFiltered:
			counts.Filtered++
		case admitStored:
			accepted = append(accepted, rec)
			counts.Stored++
		}
	}

	p.archiveTrades(ctx, accepted)
	p.finishCycle(domain.CategoryTrades, counts)
	return counts
}

// IngestTradeRecord processes a single raw trade, the WebSocket path.
func (p *Pipeline) IngestTradeRecord(ctx context.Context, raw domain.RawRecord) bool {
	rec, verdict := p.admitTrade(raw)
	if verdict != admitStored {
		return false
	}
	p.archiveTrades(ctx, []domain.TradeRecord{rec})
	_, tradesLen := p.buffers.Sizes()
	observability.UpdateBufferSize(string(domain.CategoryTrades), tradesLen)
	return true
}

type admitVerdict int

const (
	admitDuplicate admitVerdict = iota
	admitFiltered
	admitStored
)

// admitTrade runs a raw trade through dedup and the USD floor, pushing it
// into the buffer on acceptance.
func (p *Pipeline) admitTrade(raw domain.RawRecord) (domain.TradeRecord, admitVerdict) {
	rec := extract.ExtractTrade(raw)
	if !p.seen.IsNew(domain.CategoryTrades, rec.DedupKey) {
		return rec, admitDuplicate
	}
	p.seen.MarkSeen(domain.CategoryTrades, rec.DedupKey)
	if !filter.PassTrade(rec, p.tradeT) {
		return rec, admitFiltered
	}
	p.buffers.PushTrade(rec)
	return rec, admitStored
}

func (p *Pipeline) finishCycle(cat domain.Category, counts Counts) {
	observability.RecordPipeline(string(cat), counts.Fetched, counts.Stored, counts.Duplicates, counts.Filtered)
	pairsLen, tradesLen := p.buffers.Sizes()
	observability.UpdateBufferSize(string(domain.CategoryPairs), pairsLen)
	observability.UpdateBufferSize(string(domain.CategoryTrades), tradesLen)
}

// archivePairs mirrors accepted pairs into the durable archive, if any.
// Archive failure is logged and never affects the in-memory path.
func (p *Pipeline) archivePairs(ctx context.Context, recs []domain.PairRecord) {
	if p.archive == nil || len(recs) == 0 {
		return
	}
	if err := p.archive.InsertPairs(ctx, recs); err != nil {
		p.logger.Printf("archive pairs: %v", err)
	}
}

func (p *Pipeline) archiveTrades(ctx context.Context, recs []domain.TradeRecord) {
	if p.archive == nil || len(recs) == 0 {
		return
	}
	if err := p.archive.InsertTrades(ctx, recs); err != nil {
		p.logger.Printf("archive trades: %v", err)
	}
}
