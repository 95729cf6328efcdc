// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package persister implements the Rate Deriver and Aggregator: the
// stateful transformation from raw monotonic counters into validated
// rate bins and their cross-resolution rollups.
package persister

// Sample is one ingested record: a counter value for a series at a point
// in time. This is the ingestion interface contract named in the
// external interfaces section.
type Sample struct {
	Path []string
	Freq int64 // ms per sample, the series' native frequency
	Ts   int64 // ms since epoch
	Val  int64
}

// Classification names how a sample's delta against the prior metadata
// record was treated.
type Classification string

const (
	ClassValid      Classification = "valid"
	ClassReset      Classification = "reset"   // counter wrap or outlier delta
	ClassDuplicate  Classification = "duplicate" // out-of-order or repeat, dropped
)

// validSentinel and resetSentinel are the opaque is_valid counter values;
// per the source this preserves they distinguish "normal" from
// "valid-but-reset" for downstream tooling, but consumers should treat
// the exact values as opaque.
const (
	validSentinel = 1
	resetSentinel = 2
)

// maxSaneIntervalFactor bounds how many native periods a gap may span
// before a positive delta is treated as an outlier rather than a valid
// rate.
const maxSaneIntervalFactor = 40
