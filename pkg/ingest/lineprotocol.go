// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file decodes InfluxDB line-protocol samples, an alternative wire
// framing for the same Sample contract decoded by json.go. The
// measurement is the series' leaf path segment; tags carry the remaining
// path prefix plus the series' native frequency; the single field
// "value" carries the counter sample.
//
//	<measurement>,path=<escaped/path/prefix>,freq=<ms> value=<v> <ts_ns>
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/netsage-project/tscore/pkg/persister"
)

// DecodeLineProtocol decodes one line-protocol message and dispatches
// the resulting Sample to sink.
func DecodeLineProtocol(ctx context.Context, data []byte, sink Sink) error {
	dec := lineprotocol.NewDecoderWithBytes(data)

	for dec.Next() {
		measurement, err := dec.Measurement()
		if err != nil {
			return fmt.Errorf("ingest: line-protocol measurement: %w", err)
		}

		var pathPrefix string
		var freq int64
		for {
			key, val, err := dec.NextTag()
			if err != nil {
				return fmt.Errorf("ingest: line-protocol tag: %w", err)
			}
			if key == nil {
				break
			}
			switch string(key) {
			case "path":
				pathPrefix = string(val)
			case "freq":
				freq, _ = strconv.ParseInt(string(val), 10, 64)
			}
		}

		var val int64
		for {
			key, fv, err := dec.NextField()
			if err != nil {
				return fmt.Errorf("ingest: line-protocol field: %w", err)
			}
			if key == nil {
				break
			}
			if string(key) == "value" {
				val, err = fieldToInt64(fv)
				if err != nil {
					return fmt.Errorf("ingest: line-protocol value field: %w", err)
				}
			}
		}

		ts, err := dec.Time(lineprotocol.Nanosecond, time.Time{})
		if err != nil {
			return fmt.Errorf("ingest: line-protocol time: %w", err)
		}

		path := append(splitPathPrefix(pathPrefix), string(measurement))
		s := persister.Sample{Path: path, Freq: freq, Ts: ts.UnixMilli(), Val: val}
		if err := sink.Dispatch(ctx, s); err != nil {
			return err
		}
	}
	return dec.Err()
}

func splitPathPrefix(prefix string) []string {
	if prefix == "" {
		return nil
	}
	return strings.Split(prefix, "/")
}

func fieldToInt64(v lineprotocol.Value) (int64, error) {
	switch v.Kind() {
	case lineprotocol.Int:
		return v.IntV(), nil
	case lineprotocol.UInt:
		return int64(v.UIntV()), nil
	case lineprotocol.Float:
		return int64(v.FloatV()), nil
	default:
		return 0, fmt.Errorf("unsupported field kind %v", v.Kind())
	}
}
