package metacache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
	"github.com/netsage-project/tscore/pkg/store/storetest"
)

func TestGetOrLoadSeedsFromIncomingWhenEmpty(t *testing.T) {
	s := storetest.New()
	c := New(s)
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}

	rec, err := c.GetOrLoad(context.Background(), id, store.Row{Ts: 1000000, Raw: []byte("0")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.LastVal)
	assert.Equal(t, int64(1000000), rec.LastUpdate)
}

func TestGetOrLoadSeedsFromRawData(t *testing.T) {
	s := storetest.New()
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}
	now := time.Now()
	key := seriesid.RowKey(id, now.UTC().Year())
	v, _ := json.Marshal(12345)
	earlier := now.Add(-time.Hour)
	require.NoError(t, s.InsertRaw(context.Background(), key, earlier.UnixMilli(), v))

	c := New(s)
	rec, err := c.GetOrLoad(context.Background(), id, store.Row{Ts: now.UnixMilli(), Raw: []byte("99999")})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), rec.LastVal)
}

func TestGetOrLoadBeyondSeekBackWindowSeedsFromIncoming(t *testing.T) {
	s := storetest.New()
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}
	now := time.Now()
	key := seriesid.RowKey(id, now.Add(-60*24*time.Hour).UTC().Year())
	v, _ := json.Marshal(12345)
	tooOld := now.Add(-60 * 24 * time.Hour)
	require.NoError(t, s.InsertRaw(context.Background(), key, tooOld.UnixMilli(), v))

	c := New(s)
	rec, err := c.GetOrLoad(context.Background(), id, store.Row{Ts: now.UnixMilli(), Raw: []byte("7")})
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.LastVal, "a sample older than the seek-back window must not seed the record")
}

func TestGetOrLoadCachesAfterFirstLoad(t *testing.T) {
	s := storetest.New()
	c := New(s)
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}

	_, err := c.GetOrLoad(context.Background(), id, store.Row{Ts: 1000000, Raw: []byte("10")})
	require.NoError(t, err)
	c.Update(id, Record{LastVal: 42, LastUpdate: 2000000})

	rec, err := c.GetOrLoad(context.Background(), id, store.Row{Ts: 3000000, Raw: []byte("0")})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.LastVal, "second call must hit the cache, not reload")
}

func TestConcurrentColdLoadsDeduplicate(t *testing.T) {
	s := storetest.New()
	c := New(s)
	id := seriesid.ID{Path: []string{"r1", "ifIn"}, Freq: 30000}

	var wg sync.WaitGroup
	results := make([]Record, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := c.GetOrLoad(context.Background(), id, store.Row{Ts: 1000000, Raw: []byte("7")})
			assert.NoError(t, err)
			results[i] = rec
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}
