package persister

import "github.com/netsage-project/tscore/pkg/seriesid"

// BinIncrement is one counter increment to apply to a base-rate bin.
type BinIncrement struct {
	Ts         int64 // bin slot timestamp
	ValDelta   int64
	ValidDelta int64
}

// Derive classifies a sample against the prior metadata record and
// computes the base-rate bin increments it produces.
//
//   - Valid: Δt > 0, Δv ≥ 0, and Δt within maxSaneIntervalFactor·freq.
//     Δv is split proportionally across every bin the interval
//     [lastUpdate, ts] straddles.
//   - Reset: Δv < 0, or Δt exceeds the sane bound. One invalid-marked
//     bin at ts's own slot; val is not incremented.
//   - Duplicate: Δt ≤ 0. No bins produced; caller must drop.
func Derive(lastVal, lastUpdate, ts, val, freq int64) (Classification, []BinIncrement) {
	dt := ts - lastUpdate
	if dt <= 0 {
		return ClassDuplicate, nil
	}

	dv := val - lastVal
	if dv < 0 || dt > maxSaneIntervalFactor*freq {
		slot := seriesid.Slot(ts, freq)
		return ClassReset, []BinIncrement{{Ts: slot, ValDelta: 0, ValidDelta: resetSentinel}}
	}

	return ClassValid, straddle(lastUpdate, ts, dv, freq)
}

// straddle splits dv proportionally by the fraction of [from, to) spent
// in each bin slot at frequency freq, emitting one increment per slot
// touched. Every touched bin is marked valid once.
//
// When to-from does not exceed a full bin period, the sample arrived on
// its normal cadence and the whole delta belongs to the single bin
// containing its own timestamp, regardless of how [from, to) happens to
// line up against the absolute slot grid. Splitting across slots only
// applies once more than one full period has elapsed, i.e. one or more
// samples were missed in between.
func straddle(from, to, dv, freq int64) []BinIncrement {
	if to-from <= freq {
		return []BinIncrement{{Ts: seriesid.Slot(to, freq), ValDelta: dv, ValidDelta: validSentinel}}
	}

	total := to - from
	if total <= 0 {
		return nil
	}

	var bins []BinIncrement
	cursor := from
	var distributed int64

	for cursor < to {
		slotStart := seriesid.Slot(cursor, freq)
		slotEnd := slotStart + freq
		segEnd := slotEnd
		if segEnd > to {
			segEnd = to
		}
		segLen := segEnd - cursor

		share := dv * segLen / total
		distributed += share

		bins = append(bins, BinIncrement{Ts: slotStart, ValDelta: share, ValidDelta: validSentinel})
		cursor = segEnd
	}

	// Assign any rounding remainder to the final bin so the total split
	// across bins always equals dv exactly.
	if remainder := dv - distributed; remainder != 0 && len(bins) > 0 {
		bins[len(bins)-1].ValDelta += remainder
	}

	return mergeBins(bins)
}

// mergeBins folds repeated entries for the same slot (possible when freq
// is small relative to the straddled interval) into a single increment.
func mergeBins(bins []BinIncrement) []BinIncrement {
	if len(bins) <= 1 {
		return bins
	}
	idx := map[int64]int{}
	var out []BinIncrement
	for _, b := range bins {
		if i, ok := idx[b.Ts]; ok {
			out[i].ValDelta += b.ValDelta
			out[i].ValidDelta += b.ValidDelta
			continue
		}
		idx[b.Ts] = len(out)
		out = append(out, b)
	}
	return out
}
