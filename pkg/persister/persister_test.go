package persister

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/internal/obsmetrics"
	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
	"github.com/netsage-project/tscore/pkg/store/storetest"
)

func newTestPersister(aggFreqs map[int64][]int64) (*Persister, *storetest.Fake) {
	s := storetest.New()
	p := New(s, obsmetrics.New(), log.Nop(), aggFreqs)
	return p, s
}

// S1 — basic rate.
func TestE2EBasicRate(t *testing.T) {
	p, s := newTestPersister(nil)
	ctx := context.Background()
	path := []string{"r1", "ifIn"}

	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: 1000000, Val: 0}))
	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: 1030000, Val: 30000}))

	id := seriesid.ID{Path: path, Freq: 30000}
	key := seriesid.RowKey(id, yearOf(1020000))
	row, ok, err := s.PointSuper(ctx, store.BaseRates, key, 1020000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(30000), row.Fields["val"])
	assert.Equal(t, int64(1), row.Fields["is_valid"])
}

// S2 — counter wrap.
func TestE2ECounterWrap(t *testing.T) {
	p, s := newTestPersister(map[int64][]int64{30000: {300000}})
	ctx := context.Background()
	path := []string{"r1", "ifIn"}

	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: 1000000, Val: 4294967000}))
	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: 1030000, Val: 500}))

	id := seriesid.ID{Path: path, Freq: 30000}
	key := seriesid.RowKey(id, yearOf(1020000))
	row, ok, err := s.PointSuper(ctx, store.BaseRates, key, 1020000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), row.Fields["val"])
	assert.Equal(t, int64(resetSentinel), row.Fields["is_valid"])

	aggID := seriesid.ID{Path: path, Freq: 300000}
	aggKey := seriesid.RowKey(aggID, yearOf(1020000))
	_, ok, err = s.PointSuper(ctx, store.RateAggregations, aggKey, seriesid.Slot(1020000, 300000))
	require.NoError(t, err)
	assert.False(t, ok, "an invalid bin must not fan out to aggregations")
}

// S3 — out-of-order drop.
func TestE2EOutOfOrderDrop(t *testing.T) {
	p, _ := newTestPersister(nil)
	ctx := context.Background()
	path := []string{"r1", "ifIn"}

	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: 2000000, Val: 100}))
	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: 1970000, Val: 80}))

	id := seriesid.ID{Path: path, Freq: 30000}
	rec, err := p.meta.GetOrLoad(ctx, id, store.Row{})
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), rec.LastUpdate)
}

// S5 — year-crossing query.
func TestE2EYearCrossing(t *testing.T) {
	p, s := newTestPersister(nil)
	ctx := context.Background()
	path := []string{"r1", "ifIn"}

	tsA := time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC).UnixMilli()
	tsB := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC).UnixMilli()

	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: tsA, Val: 0}))
	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: tsB, Val: 100}))

	id := seriesid.ID{Path: path, Freq: 30000}
	keyA := seriesid.RowKey(id, 2023)
	keyB := seriesid.RowKey(id, 2024)
	assert.NotEqual(t, keyA, keyB)

	rowsA, err := s.MultiRange(ctx, store.RawData, []string{keyA}, 0, tsA, false, 0)
	require.NoError(t, err)
	rowsB, err := s.MultiRange(ctx, store.RawData, []string{keyB}, tsB, tsB, false, 0)
	require.NoError(t, err)
	assert.Len(t, rowsA, 1)
	assert.Len(t, rowsB, 1)
}

// S6 — cold-start metadata.
func TestE2EColdStartMetadata(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	path := []string{"r1", "ifIn"}
	id := seriesid.ID{Path: path, Freq: 30000}

	const T = int64(1000000)
	key := seriesid.RowKey(id, yearOf(T))
	require.NoError(t, s.InsertRaw(ctx, key, T, []byte("100")))

	p := New(s, obsmetrics.New(), log.Nop(), nil)
	require.NoError(t, p.Ingest(ctx, Sample{Path: path, Freq: 30000, Ts: T + 30000, Val: 130}))

	binKey := seriesid.RowKey(id, yearOf(T+30000))
	row, ok, err := s.PointSuper(ctx, store.BaseRates, binKey, seriesid.Slot(T+30000, 30000))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(30), row.Fields["val"])
}

// SeenSeries tracks distinct (path, freq) pairs, used to scope the
// periodic archive job without a separate series registry.
func TestSeenSeriesTracksDistinctSeries(t *testing.T) {
	p, _ := newTestPersister(nil)
	ctx := context.Background()

	require.NoError(t, p.Ingest(ctx, Sample{Path: []string{"r1", "ifIn"}, Freq: 30000, Ts: 1000000, Val: 0}))
	require.NoError(t, p.Ingest(ctx, Sample{Path: []string{"r1", "ifIn"}, Freq: 30000, Ts: 1030000, Val: 10}))
	require.NoError(t, p.Ingest(ctx, Sample{Path: []string{"r2", "ifOut"}, Freq: 60000, Ts: 1000000, Val: 0}))

	seen := p.SeenSeries()
	assert.Len(t, seen, 2)
}

// Restart idempotence (property test 5): re-ingesting the same stream on
// a fresh persister over a store that already holds the first half
// yields the same final base-rate state as ingesting the whole stream at
// once, since counter increments are commutative and per-sample
// processing only depends on the prior metadata record.
func TestRestartIdempotence(t *testing.T) {
	path := []string{"r1", "ifIn"}
	stream := []Sample{
		{Path: path, Freq: 30000, Ts: 1000000, Val: 0},
		{Path: path, Freq: 30000, Ts: 1030000, Val: 30000},
		{Path: path, Freq: 30000, Ts: 1060000, Val: 60000},
	}

	// Whole stream, single persister.
	sFull := storetest.New()
	pFull := New(sFull, obsmetrics.New(), log.Nop(), nil)
	for _, samp := range stream {
		require.NoError(t, pFull.Ingest(context.Background(), samp))
	}

	// Split stream: first half persisted, then a fresh persister over the
	// same store continues from where metadata cold-loads it.
	sSplit := storetest.New()
	p1 := New(sSplit, obsmetrics.New(), log.Nop(), nil)
	require.NoError(t, p1.Ingest(context.Background(), stream[0]))
	require.NoError(t, p1.Ingest(context.Background(), stream[1]))

	p2 := New(sSplit, obsmetrics.New(), log.Nop(), nil)
	require.NoError(t, p2.Ingest(context.Background(), stream[2]))

	id := seriesid.ID{Path: path, Freq: 30000}
	for _, ts := range []int64{1020000, 1050000} {
		key := seriesid.RowKey(id, yearOf(ts))
		rFull, okFull, err := sFull.PointSuper(context.Background(), store.BaseRates, key, ts)
		require.NoError(t, err)
		rSplit, okSplit, err := sSplit.PointSuper(context.Background(), store.BaseRates, key, ts)
		require.NoError(t, err)
		require.Equal(t, okFull, okSplit)
		if okFull {
			assert.Equal(t, rFull.Fields, rSplit.Fields)
		}
	}
}
