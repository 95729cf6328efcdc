// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store is a thin typed façade over a wide-column key/value store,
// exposing the four logical column families used by the persister and
// query planner: raw_data, base_rates, rate_aggregations, stat_aggregations.
package store

import "context"

// Table names one of the four logical column families.
type Table string

const (
	RawData           Table = "raw_data"
	BaseRates         Table = "base_rates"
	RateAggregations  Table = "rate_aggregations"
	StatAggregations  Table = "stat_aggregations"
)

// StatFields is a subset of {min, max, min_ts, max_ts}; nil pointers are
// omitted from the write.
type StatFields struct {
	Min   *int64
	Max   *int64
	MinTs *int64
	MaxTs *int64
}

// Row is one column read back from a range slice or point read. Fields
// holds counter/long sub-columns (base_rates, rate_aggregations,
// stat_aggregations); Raw holds the JSON scalar for raw_data reads.
type Row struct {
	Key    string
	Ts     int64
	Fields map[string]int64
	Raw    []byte
}

// Adapter is the public contract of the Store Adapter component: batched
// inserts, counter increments, range slices, and point reads against the
// four logical tables.
type Adapter interface {
	// EnsureSchema idempotently creates the keyspace and column families.
	EnsureSchema(ctx context.Context) error

	// InsertRaw queues a raw counter sample for the given series row key.
	InsertRaw(ctx context.Context, key string, ts int64, value []byte) error

	// IncrementRate applies a counter increment to a base_rates bin.
	IncrementRate(ctx context.Context, key string, ts int64, valDelta, validDelta int64) error

	// IncrementAgg applies a counter increment to a rate_aggregations bin;
	// the sub-column incremented by countDelta is named after baseFreq.
	IncrementAgg(ctx context.Context, key string, ts int64, valDelta int64, baseFreq int64, countDelta int64) error

	// PutStat performs a non-counter (last-write-wins) write of a subset of
	// {min, max, min_ts, max_ts} to a stat_aggregations bin.
	PutStat(ctx context.Context, key string, ts int64, fields StatFields) error

	// MultiRange issues a range slice bounded by [colStart, colFinish]
	// across multiple row-shards (keys), optionally reversed and limited.
	MultiRange(ctx context.Context, table Table, keys []string, colStart, colFinish int64, reversed bool, limit int) ([]Row, error)

	// PointSuper fetches a single super-column (one timestamp) from one
	// row. ok is false, err nil on not-found.
	PointSuper(ctx context.Context, table Table, key string, ts int64) (Row, bool, error)

	// Count returns the number of columns in [colStart, colFinish] across
	// the given row-shards, used to size soft query limits.
	Count(ctx context.Context, table Table, keys []string, colStart, colFinish int64) (int, error)

	// Flush drains all queued batches synchronously.
	Flush(ctx context.Context) error

	// Close disposes of connections. Flush is not implied; callers should
	// Flush first.
	Close() error
}
