package seriesid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		id   ID
		year int
	}{
		{"simple", ID{Path: []string{"r1", "ifIn"}, Freq: 30000}, 2024},
		{"colon-in-segment", ID{Path: []string{"r1:sub", "ifIn"}, Freq: 30000}, 2024},
		{"backslash-in-segment", ID{Path: []string{`r1\host`, "ifIn"}, Freq: 30000}, 2024},
		{"both", ID{Path: []string{`r1:a\b`, "oid", "if0"}, Freq: 300000}, 1999},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			key := RowKey(c.id, c.year)
			path, freq, year, ok := Decode(key)
			require.True(t, ok)
			assert.Equal(t, c.id.Path, path)
			assert.Equal(t, c.id.Freq, freq)
			assert.Equal(t, c.year, year)
		})
	}
}

func TestSlot(t *testing.T) {
	assert.Equal(t, int64(1020000), Slot(1030000, 30000))
	assert.Equal(t, int64(990000), Slot(1000000, 30000))
	assert.Equal(t, int64(0), Slot(999, 30000))
}

func TestSlotMatchesTimeTruncate(t *testing.T) {
	f := int64(300000)
	ts := time.Date(2024, 3, 4, 12, 34, 56, 0, time.UTC).UnixMilli()
	got := Slot(ts, f)
	assert.Equal(t, int64(0), got%f)
	assert.LessOrEqual(t, got, ts)
	assert.Greater(t, got+f, ts)
}
