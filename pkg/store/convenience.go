// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import "context"

// FirstRaw returns the earliest raw_data column across keys within
// [colStart, colFinish], or ok=false if none exists. A thin convenience
// wrapper over MultiRange, not a distinct storage primitive.
func FirstRaw(ctx context.Context, a Adapter, keys []string, colStart, colFinish int64) (Row, bool, error) {
	rows, err := a.MultiRange(ctx, RawData, keys, colStart, colFinish, false, 1)
	if err != nil || len(rows) == 0 {
		return Row{}, false, err
	}
	return rows[0], true, nil
}

// LastRaw returns the most recent raw_data column across keys within
// [colStart, colFinish], or ok=false if none exists.
func LastRaw(ctx context.Context, a Adapter, keys []string, colStart, colFinish int64) (Row, bool, error) {
	rows, err := a.MultiRange(ctx, RawData, keys, colStart, colFinish, true, 1)
	if err != nil || len(rows) == 0 {
		return Row{}, false, err
	}
	return rows[0], true, nil
}
