package persister

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/internal/obsmetrics"
	"github.com/netsage-project/tscore/pkg/metacache"
	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
)

// maxTrackedSeries bounds the in-memory registry of distinct series the
// persister has seen, used only to scope the periodic archive job to
// series actually being written to. It is not a correctness mechanism.
const maxTrackedSeries = 100000

// Persister wires the Metadata Cache, Rate Deriver, and Aggregator into a
// single Ingest entry point, matching the ordering guarantee that raw
// insert and rate increment for one sample are issued back-to-back and
// flushed together.
type Persister struct {
	store   store.Adapter
	meta    *metacache.Cache
	agg     *Aggregator
	metrics *obsmetrics.Metrics
	log     *log.Logger

	// AggFreqs maps a series' native frequency to the coarser
	// frequencies it rolls up into. Configured once at construction.
	aggFreqs map[int64][]int64

	seenMu sync.Mutex
	seen   map[string]seriesid.ID
}

// New constructs a Persister. aggFreqs maps a native sampling frequency
// to the list of coarser rollup frequencies configured for it.
func New(s store.Adapter, m *obsmetrics.Metrics, logger *log.Logger, aggFreqs map[int64][]int64) *Persister {
	return &Persister{
		store:    s,
		meta:     metacache.New(s),
		agg:      NewAggregator(s),
		metrics:  m,
		log:      logger.With("persister"),
		aggFreqs: aggFreqs,
		seen:     make(map[string]seriesid.ID),
	}
}

// SeenSeries returns a snapshot of the distinct series this persister has
// ingested a sample for since process start. Consumed by the periodic
// archive job to scope its export without requiring a separate series
// registry.
func (p *Persister) SeenSeries() []seriesid.ID {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	out := make([]seriesid.ID, 0, len(p.seen))
	for _, id := range p.seen {
		out = append(out, id)
	}
	return out
}

func (p *Persister) trackSeen(id seriesid.ID) {
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	if len(p.seen) >= maxTrackedSeries {
		return
	}
	p.seen[seriesid.RowKey(id, 0)] = id
}

// Ingest processes one sample: persist raw unconditionally, derive the
// base-rate bin(s), and fan out to the Aggregator for every configured
// coarser frequency.
func (p *Persister) Ingest(ctx context.Context, s Sample) error {
	id := seriesid.ID{Path: s.Path, Freq: s.Freq}
	p.trackSeen(id)
	year := time.UnixMilli(s.Ts).UTC().Year()
	rawKey := seriesid.RowKey(id, year)

	rawVal, err := json.Marshal(s.Val)
	if err != nil {
		return fmt.Errorf("persister: marshal raw value: %w", err)
	}
	if err := p.store.InsertRaw(ctx, rawKey, s.Ts, rawVal); err != nil {
		p.log.Warnf("raw insert failed for %v: %v", s.Path, err)
		p.metrics.WriteFailures.WithLabelValues(string(store.RawData)).Inc()
	}

	rec, err := p.meta.GetOrLoad(ctx, id, store.Row{Ts: s.Ts, Raw: rawVal})
	if err != nil {
		return fmt.Errorf("persister: load metadata: %w", err)
	}

	class, bins := Derive(rec.LastVal, rec.LastUpdate, s.Ts, s.Val, s.Freq)
	p.metrics.SamplesIngested.WithLabelValues(string(class)).Inc()

	switch class {
	case ClassDuplicate:
		p.log.Debugf("dropping out-of-order sample for %v at ts=%d", s.Path, s.Ts)
		return nil
	case ClassReset:
		p.metrics.BinsInvalid.Inc()
	}

	for _, b := range bins {
		key := seriesid.RowKey(id, time.UnixMilli(b.Ts).UTC().Year())
		if err := p.store.IncrementRate(ctx, key, b.Ts, b.ValDelta, b.ValidDelta); err != nil {
			p.log.Warnf("rate increment failed for %v: %v", s.Path, err)
			p.metrics.WriteFailures.WithLabelValues(string(store.BaseRates)).Inc()
			continue
		}
		if class == ClassValid {
			if freqs := p.aggFreqs[s.Freq]; len(freqs) > 0 {
				if err := p.agg.Rollup(ctx, id, s.Freq, b.Ts, b.ValDelta, freqs); err != nil {
					p.log.Warnf("aggregation rollup failed for %v: %v", s.Path, err)
					p.metrics.WriteFailures.WithLabelValues(string(store.RateAggregations)).Inc()
				}
			}
		}
	}

	p.meta.Update(id, metacache.Record{
		LastVal:    s.Val,
		LastUpdate: s.Ts,
		MinTs:      minTs(rec.MinTs, s.Ts),
	})
	return nil
}

// Flush drains all store batches, e.g. during graceful shutdown or in
// tests that need writes to be visible immediately afterward.
func (p *Persister) Flush(ctx context.Context) error {
	return p.store.Flush(ctx)
}

func minTs(a, b int64) int64 {
	if a == 0 || b < a {
		return b
	}
	return a
}
