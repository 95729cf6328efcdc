// Package storetest provides an in-memory fake of store.Adapter for use in
// persister and query planner tests, standing in for a live cluster.
package storetest

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/netsage-project/tscore/pkg/store"
)

type cell struct {
	fields map[string]int64
	raw    []byte
}

// Fake is a single-process, mutex-guarded implementation of store.Adapter.
// Writes apply immediately; there is no batching, since tests care about
// observable state, not write-behind timing.
type Fake struct {
	mu   sync.Mutex
	data map[store.Table]map[string]map[int64]*cell

	// WriteCalls counts every write call, letting tests assert on call
	// counts (e.g. the "at most 2 stat writes" property).
	WriteCalls int
}

func New() *Fake {
	return &Fake{
		data: map[store.Table]map[string]map[int64]*cell{
			store.RawData:          {},
			store.BaseRates:        {},
			store.RateAggregations: {},
			store.StatAggregations: {},
		},
	}
}

func (f *Fake) cellFor(table store.Table, key string, ts int64) *cell {
	rows, ok := f.data[table][key]
	if !ok {
		rows = map[int64]*cell{}
		f.data[table][key] = rows
	}
	c, ok := rows[ts]
	if !ok {
		c = &cell{fields: map[string]int64{}}
		rows[ts] = c
	}
	return c
}

func (f *Fake) EnsureSchema(ctx context.Context) error { return nil }

func (f *Fake) InsertRaw(ctx context.Context, key string, ts int64, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCalls++
	c := f.cellFor(store.RawData, key, ts)
	c.raw = append([]byte(nil), value...)
	return nil
}

func (f *Fake) IncrementRate(ctx context.Context, key string, ts int64, valDelta, validDelta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCalls++
	c := f.cellFor(store.BaseRates, key, ts)
	c.fields["val"] += valDelta
	c.fields["is_valid"] += validDelta
	return nil
}

func (f *Fake) IncrementAgg(ctx context.Context, key string, ts int64, valDelta int64, baseFreq int64, countDelta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCalls++
	c := f.cellFor(store.RateAggregations, key, ts)
	c.fields["val"] += valDelta
	sub := strconv.FormatInt(baseFreq, 10)
	c.fields[sub] += countDelta
	return nil
}

func (f *Fake) PutStat(ctx context.Context, key string, ts int64, fields store.StatFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCalls++
	c := f.cellFor(store.StatAggregations, key, ts)
	if fields.Min != nil {
		c.fields["min"] = *fields.Min
	}
	if fields.Max != nil {
		c.fields["max"] = *fields.Max
	}
	if fields.MinTs != nil {
		c.fields["min_ts"] = *fields.MinTs
	}
	if fields.MaxTs != nil {
		c.fields["max_ts"] = *fields.MaxTs
	}
	return nil
}

func (f *Fake) MultiRange(ctx context.Context, table store.Table, keys []string, colStart, colFinish int64, reversed bool, limit int) ([]store.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []store.Row
	for _, key := range keys {
		for ts, c := range f.data[table][key] {
			if ts < colStart || ts > colFinish {
				continue
			}
			rows = append(rows, toRow(table, key, ts, c))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if reversed {
			return rows[i].Ts > rows[j].Ts
		}
		return rows[i].Ts < rows[j].Ts
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *Fake) PointSuper(ctx context.Context, table store.Table, key string, ts int64) (store.Row, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.data[table][key]
	if !ok {
		return store.Row{}, false, nil
	}
	c, ok := rows[ts]
	if !ok {
		return store.Row{}, false, nil
	}
	return toRow(table, key, ts, c), true, nil
}

func (f *Fake) Count(ctx context.Context, table store.Table, keys []string, colStart, colFinish int64) (int, error) {
	rows, err := f.MultiRange(ctx, table, keys, colStart, colFinish, false, 0)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (f *Fake) Flush(ctx context.Context) error { return nil }
func (f *Fake) Close() error                    { return nil }

func toRow(table store.Table, key string, ts int64, c *cell) store.Row {
	r := store.Row{Key: key, Ts: ts}
	if table == store.RawData {
		r.Raw = append([]byte(nil), c.raw...)
		return r
	}
	r.Fields = map[string]int64{}
	for k, v := range c.fields {
		r.Fields[k] = v
	}
	return r
}

var _ store.Adapter = (*Fake)(nil)
