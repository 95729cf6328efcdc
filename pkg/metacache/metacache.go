// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metacache implements the Metadata Cache: a per-series in-memory
// record of (last_val, last_update, min_ts) used to compute counter
// deltas, lazily seeded from raw_data on first touch.
//
// Concurrent cold loads for the same series are de-duplicated: only one
// goroutine performs the store scan, and the rest wait on it, adapted
// from the compute-on-miss-with-dedup pattern used elsewhere in this
// codebase for hierarchical lookup caches.
package metacache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
)

// SeekBackWindow is the cold-start recovery horizon: samples older than
// this are treated as belonging to a new series, since any counter delta
// against them would be meaningless.
const SeekBackWindow = 30 * 24 * time.Hour

// Record is the per-series metadata used to derive rate deltas.
type Record struct {
	LastVal    int64
	LastUpdate int64 // ms, ts of the last sample consumed
	MinTs      int64 // ms, earliest ts ever seen for this series
}

type entry struct {
	rec   Record
	ready bool // false while a load is in flight
}

// Cache holds one Record per series, loading on first touch from the
// store's raw_data table.
type Cache struct {
	store store.Adapter

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
}

// New constructs a Cache backed by s.
func New(s store.Adapter) *Cache {
	c := &Cache{store: s, entries: map[string]*entry{}}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// GetOrLoad returns the metadata record for id, loading it if absent.
// incoming is the sample currently being processed; if no prior raw_data
// is found within the cold-start window, the record is seeded from it, so
// the first sample of a genuinely new series has Δt = 0: the deriver
// classifies it as a duplicate, no bin is produced, and the sample only
// establishes the series' baseline.
//
// The cold-start window is anchored on incoming.Ts, not wall-clock time:
// the series' own most recent sample is what defines "now" for recovery
// purposes, matching the persister's per-series ordering guarantee.
func (c *Cache) GetOrLoad(ctx context.Context, id seriesid.ID, incoming store.Row) (Record, error) {
	key := cacheKey(id)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		for !e.ready {
			c.cond.Wait()
		}
		rec := e.rec
		c.mu.Unlock()
		return rec, nil
	}

	e = &entry{}
	c.entries[key] = e
	c.mu.Unlock()

	rec, err := c.coldLoad(ctx, id, incoming)

	c.mu.Lock()
	if err != nil {
		delete(c.entries, key)
		c.mu.Unlock()
		c.cond.Broadcast()
		return Record{}, err
	}
	e.rec = rec
	e.ready = true
	c.mu.Unlock()
	c.cond.Broadcast()
	return rec, nil
}

// coldLoad scans raw_data in reverse across the year-shards spanning
// [incoming.Ts-30d, incoming.Ts] for the single most-recent column
// strictly before the incoming sample.
func (c *Cache) coldLoad(ctx context.Context, id seriesid.ID, incoming store.Row) (Record, error) {
	now := time.UnixMilli(incoming.Ts)
	since := now.Add(-SeekBackWindow)
	keys := yearShardKeys(id, since, now)

	r, found, err := store.LastRaw(ctx, c.store, keys, since.UnixMilli(), now.UnixMilli()-1)
	if err != nil {
		return Record{}, err
	}

	if found {
		v, ok := parseRawValue(r.Raw)
		if ok {
			return Record{LastVal: v, LastUpdate: r.Ts, MinTs: r.Ts}, nil
		}
	}

	// Nothing found in the cold-start window: seed from the sample
	// currently being ingested so it establishes the series' baseline
	// rather than producing a spurious delta.
	v, _ := parseRawValue(incoming.Raw)
	return Record{LastVal: v, LastUpdate: incoming.Ts, MinTs: incoming.Ts}, nil
}

// Update in-place updates the cached record for id. There is no
// persistence: metadata is always reconstructable from raw_data.
func (c *Cache) Update(id seriesid.ID, rec Record) {
	key := cacheKey(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.ready {
		e.rec = rec
		return
	}
	c.entries[key] = &entry{rec: rec, ready: true}
}

// cacheKey identifies a series independent of any year-shard, unlike
// seriesid.RowKey which always encodes one.
func cacheKey(id seriesid.ID) string {
	key := ""
	for _, p := range id.Path {
		key += p + "\x00"
	}
	key += strconv.FormatInt(id.Freq, 10)
	return key
}

func yearShardKeys(id seriesid.ID, from, to time.Time) []string {
	keys := []string{}
	seen := map[int]bool{}
	for y := from.UTC().Year(); y <= to.UTC().Year(); y++ {
		if !seen[y] {
			keys = append(keys, seriesid.RowKey(id, y))
			seen[y] = true
		}
	}
	return keys
}

// parseRawValue decodes the JSON scalar stored in raw_data. Per the wire
// format, values are JSON numbers (integer counter samples).
func parseRawValue(raw []byte) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}
