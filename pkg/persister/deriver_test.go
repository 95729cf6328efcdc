package persister

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveValidSingleBin(t *testing.T) {
	class, bins := Derive(0, 1000000, 1030000, 30000, 30000)
	require.Equal(t, ClassValid, class)
	require.Len(t, bins, 1)
	assert.Equal(t, int64(1020000), bins[0].Ts)
	assert.Equal(t, int64(30000), bins[0].ValDelta)
	assert.Equal(t, int64(validSentinel), bins[0].ValidDelta)
}

func TestDeriveCounterWrap(t *testing.T) {
	class, bins := Derive(4294967000, 1000000, 1030000, 500, 30000)
	require.Equal(t, ClassReset, class)
	require.Len(t, bins, 1)
	assert.Equal(t, int64(0), bins[0].ValDelta)
	assert.Equal(t, int64(resetSentinel), bins[0].ValidDelta)
}

func TestDeriveOutOfOrderDrop(t *testing.T) {
	class, bins := Derive(100, 2000000, 1970000, 80, 30000)
	assert.Equal(t, ClassDuplicate, class)
	assert.Nil(t, bins)
}

func TestDeriveBinStraddle(t *testing.T) {
	// last_update=1000000, ts=1075000, freq=30000: spans slots at
	// 990000, 1020000, 1050000 (three bins touched).
	class, bins := Derive(0, 1000000, 1075000, 75000, 30000)
	require.Equal(t, ClassValid, class)
	require.Len(t, bins, 3)

	var total int64
	for _, b := range bins {
		total += b.ValDelta
	}
	assert.Equal(t, int64(75000), total, "straddled delta must sum exactly to the total delta")
}

func TestDeriveSumOfValDeltasEqualsTotalDelta(t *testing.T) {
	// Property test 3: sum of base_rates.val over a stream of strictly
	// increasing counters equals the total counter delta.
	steps := []struct{ ts, val int64 }{
		{1000000, 0}, {1030000, 30000}, {1060000, 70000}, {1090000, 100000},
	}
	var sumDeltas int64
	for i := 1; i < len(steps); i++ {
		_, bins := Derive(steps[i-1].val, steps[i-1].ts, steps[i].ts, steps[i].val, 30000)
		for _, b := range bins {
			sumDeltas += b.ValDelta
		}
	}
	assert.Equal(t, steps[len(steps)-1].val-steps[0].val, sumDeltas)
}
