// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	tslog "github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/pkg/archive"
	"github.com/netsage-project/tscore/pkg/persister"
	"github.com/netsage-project/tscore/pkg/seriesid"
	"github.com/netsage-project/tscore/pkg/store"
)

// runArchiveCycle exports the prior UTC day's raw_data for every series the
// persister has observed since process start to Parquet, uploading each
// series/day as its own shard when a bucket is configured. Series discovery
// is intentionally scoped to persister.SeenSeries rather than a full table
// scan: a complete retention sweep over every series ever written belongs to
// a separate batch job with its own schedule, not the live daemon's loop.
func runArchiveCycle(ctx context.Context, adapter store.Adapter, w *archive.Writer, p *persister.Persister, log *tslog.Logger) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	ids := p.SeenSeries()
	if len(ids) == 0 {
		return
	}

	for _, id := range ids {
		key := seriesid.RowKey(id, dayStart.Year())
		rows, err := adapter.MultiRange(ctx, store.RawData, []string{key}, dayStart.UnixMilli(), dayEnd.UnixMilli()-1, false, 0)
		if err != nil {
			log.Warnf("archive cycle: read raw_data for %v: %v", id.Path, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		flat := archive.Flatten(store.RawData, rows)
		objectKey := fmt.Sprintf("%s/%s.parquet", dayStart.Format("2006-01-02"), key)
		if err := w.UploadShard(ctx, objectKey, flat); err != nil {
			log.Warnf("archive cycle: upload shard for %v: %v", id.Path, err)
		}
	}
}
