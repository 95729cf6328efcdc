package persister

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
	"github.com/netsage-project/tscore/pkg/store/storetest"
)

func TestAggregatorMinMaxRollup(t *testing.T) {
	s := storetest.New()
	agg := NewAggregator(s)
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}
	ctx := context.Background()

	const F = 300000
	binTs := seriesid.Slot(1000000, F)

	for _, val := range []int64{10, 50, 20, 5, 30} {
		require.NoError(t, agg.Rollup(ctx, id, 30000, binTs, val, []int64{F}))
	}

	aggID := seriesid.ID{Path: id.Path, Freq: F}
	key := seriesid.RowKey(aggID, yearOf(binTs))
	row, ok, err := s.PointSuper(ctx, store.StatAggregations, key, binTs)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int64(5), row.Fields["min"])
	assert.Equal(t, int64(50), row.Fields["max"])

	// 5 rate-average increments + 3 stat writes (seed@10, max@50, min@5);
	// 20 and 30 fall inside the running [min,max] and write nothing.
	assert.Equal(t, 8, s.WriteCalls)
}

func TestAggregatorRateAverageRollup(t *testing.T) {
	s := storetest.New()
	agg := NewAggregator(s)
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}
	ctx := context.Background()

	const F = 300000
	binTs := seriesid.Slot(1000000, F)
	require.NoError(t, agg.Rollup(ctx, id, 30000, binTs, 1000, []int64{F}))
	require.NoError(t, agg.Rollup(ctx, id, 30000, binTs, 2000, []int64{F}))

	aggID := seriesid.ID{Path: id.Path, Freq: F}
	key := seriesid.RowKey(aggID, yearOf(binTs))
	row, ok, err := s.PointSuper(ctx, store.RateAggregations, key, binTs)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3000), row.Fields["val"])
	assert.Equal(t, int64(2), row.Fields["30000"])
}

func TestAggregatorDiscardsCacheOnBinRollover(t *testing.T) {
	s := storetest.New()
	agg := NewAggregator(s)
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}
	ctx := context.Background()

	const F = 300000
	bin1 := seriesid.Slot(1000000, F)
	bin2 := bin1 + F

	require.NoError(t, agg.Rollup(ctx, id, 30000, bin1, 10, []int64{F}))
	require.NoError(t, agg.Rollup(ctx, id, 30000, bin2, 999, []int64{F}))

	aggID := seriesid.ID{Path: id.Path, Freq: F}
	key := seriesid.RowKey(aggID, yearOf(bin2))
	row, ok, err := s.PointSuper(ctx, store.StatAggregations, key, bin2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(999), row.Fields["min"])
	assert.Equal(t, int64(999), row.Fields["max"])
}
