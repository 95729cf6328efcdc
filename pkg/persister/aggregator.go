package persister

import (
	"context"
	"sync"
	"time"

	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
)

// statEntry is the cached {min, max, min_ts, max_ts} for the currently
// open stat-aggregation bin of one series at one coarser frequency.
type statEntry struct {
	binTs        int64
	min, max     int64
	minTs, maxTs int64
}

// Aggregator writes rate-average and stat (min/max) rollups at coarser
// frequencies, eliding redundant stat writes via an in-memory cache
// bounded to one open bin per series.
type Aggregator struct {
	store store.Adapter

	mu    sync.Mutex
	cache map[string]*statEntry // keyed by the rate_aggregations row key
}

// NewAggregator constructs an Aggregator backed by s.
func NewAggregator(s store.Adapter) *Aggregator {
	return &Aggregator{store: s, cache: map[string]*statEntry{}}
}

// Rollup applies one base-rate bin update (series, baseFreq, binTs, val)
// to every configured coarser frequency in aggFreqs: a rate-average
// increment and a stat min/max rollup.
func (a *Aggregator) Rollup(ctx context.Context, id seriesid.ID, baseFreq, binTs, val int64, aggFreqs []int64) error {
	for _, F := range aggFreqs {
		aggBinTs := seriesid.Slot(binTs, F)
		aggID := seriesid.ID{Path: id.Path, Freq: F}
		key := seriesid.RowKey(aggID, yearOf(aggBinTs))

		if err := a.store.IncrementAgg(ctx, key, aggBinTs, val, baseFreq, 1); err != nil {
			return err
		}
		if err := a.rollupStat(ctx, key, aggBinTs, binTs, val); err != nil {
			return err
		}
	}
	return nil
}

// rollupStat implements the read-before-write-elided stat rollup
// described for the Aggregator: one point read per series per restart
// per bin, at most two writes per bin extremum. srcTs is the base-rate bin
// timestamp that produced val; it is recorded as min_ts/max_ts.
func (a *Aggregator) rollupStat(ctx context.Context, key string, binTs, srcTs, val int64) error {
	a.mu.Lock()
	e, ok := a.cache[key]
	a.mu.Unlock()

	if ok && e.binTs != binTs {
		// New bin started; discard the stale entry so it gets reseeded.
		a.mu.Lock()
		delete(a.cache, key)
		a.mu.Unlock()
		e, ok = nil, false
	}

	if !ok {
		seeded, err := a.seedStat(ctx, key, binTs)
		if err != nil {
			return err
		}
		e = seeded
	}

	if e == nil {
		// Nothing found in storage either: first sample of the bin.
		e = &statEntry{binTs: binTs, min: val, max: val, minTs: srcTs, maxTs: srcTs}
		a.mu.Lock()
		a.cache[key] = e
		a.mu.Unlock()
		return a.store.PutStat(ctx, key, binTs, store.StatFields{
			Min: &e.min, Max: &e.max, MinTs: &e.minTs, MaxTs: &e.maxTs,
		})
	}

	switch {
	case val > e.max:
		a.mu.Lock()
		e.max, e.maxTs = val, srcTs
		a.mu.Unlock()
		return a.store.PutStat(ctx, key, binTs, store.StatFields{Max: &e.max, MaxTs: &e.maxTs})
	case val < e.min:
		a.mu.Lock()
		e.min, e.minTs = val, srcTs
		a.mu.Unlock()
		return a.store.PutStat(ctx, key, binTs, store.StatFields{Min: &e.min, MinTs: &e.minTs})
	default:
		return nil
	}
}

// seedStat issues a single point read of the bin's current super-column,
// seeding the cache from whatever is found. A nil, nil result means
// nothing was found and the caller should treat this as a fresh bin.
func (a *Aggregator) seedStat(ctx context.Context, key string, binTs int64) (*statEntry, error) {
	row, ok, err := a.store.PointSuper(ctx, store.StatAggregations, key, binTs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	e := &statEntry{binTs: binTs}
	e.min, e.max = row.Fields["min"], row.Fields["max"]
	e.minTs, e.maxTs = row.Fields["min_ts"], row.Fields["max_ts"]

	a.mu.Lock()
	a.cache[key] = e
	a.mu.Unlock()
	return e, nil
}

func yearOf(ts int64) int {
	return time.UnixMilli(ts).UTC().Year()
}
