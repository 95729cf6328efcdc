package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/pkg/store"
)

func TestFlattenCounterTable(t *testing.T) {
	rows := []store.Row{
		{Key: "r1:ifIn:30000:2024", Ts: 1000000, Fields: map[string]int64{"val": 100, "is_valid": 1}},
	}
	out := Flatten(store.BaseRates, rows)
	assert.Len(t, out, 2)
}

func TestFlattenRawTable(t *testing.T) {
	rows := []store.Row{{Key: "r1:ifIn:30000:2024", Ts: 1000000, Raw: []byte("42")}}
	out := Flatten(store.RawData, rows)
	require.Len(t, out, 1)
	assert.Equal(t, "42", out[0].RawJSON)
}

func TestEncodeShardProducesBytes(t *testing.T) {
	w := NewWriter(nil, "", "", log.Nop())
	rows := Flatten(store.BaseRates, []store.Row{
		{Key: "k", Ts: 1, Fields: map[string]int64{"val": 1, "is_valid": 1}},
	})
	data, err := w.EncodeShard(rows)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestUploadShardNoOpWithoutClient(t *testing.T) {
	w := NewWriter(nil, "", "", log.Nop())
	err := w.UploadShard(context.Background(), "shard.parquet", nil)
	assert.NoError(t, err)
}
