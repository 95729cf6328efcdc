// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package query implements the Query Planner: it accepts
// (path, freq, [t_min, t_max], consolidation), computes the year-shards
// the range spans, issues multi-row range slices, and applies the
// requested read-time consolidation function.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/internal/obsmetrics"
	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
)

// countPadding is the soft margin added to a computed count before using
// it as a query limit. Its origin predates this implementation; preserved
// verbatim for bug-for-bug compatibility rather than re-derived.
const countPadding = 5

// Consolidation names the read-time reduction applied to a stored bin.
type Consolidation string

const (
	ConsolidationAverage Consolidation = "average"
	ConsolidationDelta   Consolidation = "delta"
	ConsolidationMin     Consolidation = "min"
	ConsolidationMax     Consolidation = "max"
	ConsolidationRaw     Consolidation = "raw"
)

// Point is one consolidated output sample.
type Point struct {
	Ts  int64
	Val float64
	// Ts2 carries the extremum's own timestamp for min/max consolidation.
	Ts2 int64
}

// Planner answers range queries against the four logical tables.
type Planner struct {
	store   store.Adapter
	log     *log.Logger
	metrics *obsmetrics.Metrics
}

// New constructs a Planner backed by s. metrics may be nil, e.g. in tests
// that don't assert on observability output.
func New(s store.Adapter, logger *log.Logger, metrics *obsmetrics.Metrics) *Planner {
	return &Planner{store: s, log: logger.With("query"), metrics: metrics}
}

// observe records op's latency against QueryLatency, a no-op when metrics
// was never wired in.
func (p *Planner) observe(op string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.QueryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// yearShards returns the row keys for id covering every UTC calendar
// year touched by [tMin, tMax], inclusive of both endpoints.
func yearShards(id seriesid.ID, tMin, tMax int64) []string {
	fromYear := time.UnixMilli(tMin).UTC().Year()
	toYear := time.UnixMilli(tMax).UTC().Year()
	keys := make([]string, 0, toYear-fromYear+1)
	for y := fromYear; y <= toYear; y++ {
		keys = append(keys, seriesid.RowKey(id, y))
	}
	return keys
}

// limitOrCount resolves the query limit: if limit is given, use it
// verbatim; otherwise issue a count query across shards and pad it.
func (p *Planner) limitOrCount(ctx context.Context, table store.Table, keys []string, tMin, tMax int64, limit int) (int, error) {
	if limit > 0 {
		return limit, nil
	}
	n, err := p.store.Count(ctx, table, keys, tMin, tMax)
	if err != nil {
		return 0, err
	}
	return n + countPadding, nil
}

// QueryRaw returns raw samples for (path, freq) over [tMin, tMax].
func (p *Planner) QueryRaw(ctx context.Context, id seriesid.ID, tMin, tMax int64, limit int) ([]Point, error) {
	defer p.observe("query_raw", time.Now())
	keys := yearShards(id, tMin, tMax)
	lim, err := p.limitOrCount(ctx, store.RawData, keys, tMin, tMax, limit)
	if err != nil {
		return nil, err
	}
	rows, err := p.store.MultiRange(ctx, store.RawData, keys, tMin, tMax, false, lim)
	if err != nil {
		return nil, err
	}

	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		var v float64
		if err := unmarshalNumber(r.Raw, &v); err != nil {
			p.log.Errorf("query_raw: invalid raw value for %s@%d: %v", r.Key, r.Ts, err)
			continue
		}
		out = append(out, Point{Ts: r.Ts, Val: v})
	}
	return sortedByTs(out), nil
}

// QueryBaseRate returns base-rate bins for (path, freq) over
// [tMin, tMax], consolidated with average or delta.
func (p *Planner) QueryBaseRate(ctx context.Context, id seriesid.ID, tMin, tMax int64, consolidation Consolidation, limit int) ([]Point, error) {
	defer p.observe("query_base_rate", time.Now())
	keys := yearShards(id, tMin, tMax)
	lim, err := p.limitOrCount(ctx, store.BaseRates, keys, tMin, tMax, limit)
	if err != nil {
		return nil, err
	}
	rows, err := p.store.MultiRange(ctx, store.BaseRates, keys, tMin, tMax, false, lim)
	if err != nil {
		return nil, err
	}

	switch consolidation {
	case ConsolidationAverage, ConsolidationDelta, "":
	default:
		p.log.Errorf("query_base_rate: invalid consolidation %q, defaulting to average", consolidation)
		consolidation = ConsolidationAverage
	}

	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		val := float64(r.Fields["val"])
		if consolidation == ConsolidationAverage || consolidation == "" {
			val = val / (float64(id.Freq) / 1000)
		}
		out = append(out, Point{Ts: r.Ts, Val: val})
	}
	return sortedByTs(out), nil
}

// QueryAggregation returns aggregation bins for (path, freq) over
// [tMin, tMax], consolidated with average, min, max, or raw.
func (p *Planner) QueryAggregation(ctx context.Context, id seriesid.ID, baseFreq int64, tMin, tMax int64, consolidation Consolidation, limit int) ([]Point, error) {
	defer p.observe("query_aggregation", time.Now())
	switch consolidation {
	case ConsolidationAverage, ConsolidationMin, ConsolidationMax, ConsolidationRaw, "":
	default:
		p.log.Errorf("query_aggregation: invalid consolidation %q, defaulting to average", consolidation)
		consolidation = ConsolidationAverage
	}

	table := store.RateAggregations
	if consolidation == ConsolidationMin || consolidation == ConsolidationMax {
		table = store.StatAggregations
	}

	keys := yearShards(id, tMin, tMax)
	lim, err := p.limitOrCount(ctx, table, keys, tMin, tMax, limit)
	if err != nil {
		return nil, err
	}
	rows, err := p.store.MultiRange(ctx, table, keys, tMin, tMax, false, lim)
	if err != nil {
		return nil, err
	}

	out := make([]Point, 0, len(rows))
	for _, r := range rows {
		switch consolidation {
		case ConsolidationMin:
			out = append(out, Point{Ts: r.Ts, Val: float64(r.Fields["min"]), Ts2: r.Fields["min_ts"]})
		case ConsolidationMax:
			out = append(out, Point{Ts: r.Ts, Val: float64(r.Fields["max"]), Ts2: r.Fields["max_ts"]})
		case ConsolidationRaw:
			out = append(out, Point{Ts: r.Ts, Val: float64(r.Fields["val"])})
		default: // average
			count := r.Fields[fmt.Sprintf("%d", baseFreq)]
			if count == 0 {
				continue
			}
			avg := float64(r.Fields["val"]) / (float64(count) * float64(baseFreq) / 1000)
			out = append(out, Point{Ts: r.Ts, Val: avg})
		}
	}
	return sortedByTs(out), nil
}

// Exists reports whether any shard spanning [tMin, tMax] has any column
// for (path, freq) in table. Used to distinguish "empty range" from
// "unknown series".
func (p *Planner) Exists(ctx context.Context, id seriesid.ID, tMin, tMax int64, table store.Table) (bool, error) {
	defer p.observe("exists", time.Now())
	keys := yearShards(id, tMin, tMax)
	n, err := p.store.Count(ctx, table, keys, tMin, tMax)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func sortedByTs(pts []Point) []Point {
	sort.Slice(pts, func(i, j int) bool { return pts[i].Ts < pts[j].Ts })
	return pts
}

func unmarshalNumber(raw []byte, out *float64) error {
	return json.Unmarshal(raw, out)
}
