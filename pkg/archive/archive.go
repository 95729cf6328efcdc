// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package archive flattens rows read from the store into Parquet files
// and optionally uploads them to S3 for cold storage. This supplements
// the persister core with long-term retention beyond the live
// wide-column store.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/parquet-go/parquet-go"

	"github.com/netsage-project/tscore/internal/log"
	"github.com/netsage-project/tscore/pkg/store"
)

// Row is one flattened column from any of the four logical tables,
// shaped for columnar export.
type Row struct {
	Table   string `parquet:"table"`
	Key     string `parquet:"key"`
	Ts      int64  `parquet:"ts"`
	Field   string `parquet:"field"`
	Value   int64  `parquet:"value"`
	RawJSON string `parquet:"raw_json,optional"`
}

// Flatten converts a batch of store.Row results for table into Parquet
// export rows, one per non-key column.
func Flatten(table store.Table, rows []store.Row) []Row {
	var out []Row
	for _, r := range rows {
		if table == store.RawData {
			out = append(out, Row{Table: string(table), Key: r.Key, Ts: r.Ts, RawJSON: string(r.Raw)})
			continue
		}
		for field, val := range r.Fields {
			out = append(out, Row{Table: string(table), Key: r.Key, Ts: r.Ts, Field: field, Value: val})
		}
	}
	return out
}

// Writer produces Parquet-encoded shards and, when configured with a
// bucket, uploads them to S3.
type Writer struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
	log      *log.Logger
}

// NewWriter constructs a Writer. s3Client and bucket may be left zero to
// produce Parquet bytes without uploading, e.g. for local inspection or
// tests.
func NewWriter(s3Client *s3.Client, bucket, prefix string, logger *log.Logger) *Writer {
	return &Writer{s3Client: s3Client, bucket: bucket, prefix: prefix, log: logger.With("archive")}
}

// EncodeShard serializes rows to a Parquet byte buffer.
func (w *Writer) EncodeShard(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	pw := parquet.NewGenericWriter[Row](&buf)
	if _, err := pw.Write(rows); err != nil {
		return nil, fmt.Errorf("archive: write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("archive: close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// UploadShard encodes rows and uploads the result to the object key
// prefix+objectKey in bucket (the prefix is prepended as is, with no
// separator added). If no S3 client was configured it encodes the rows,
// discards the bytes, and returns nil.
func (w *Writer) UploadShard(ctx context.Context, objectKey string, rows []Row) error {
	data, err := w.EncodeShard(rows)
	if err != nil {
		return err
	}
	if w.s3Client == nil {
		w.log.Debugf("archive: no S3 client configured, skipping upload of %s (%d bytes)", objectKey, len(data))
		return nil
	}

	key := w.prefix + objectKey
	_, err = w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}
	w.log.Infof("archive: uploaded %d rows (%d bytes) to s3://%s/%s", len(rows), len(data), w.bucket, key)
	return nil
}
