package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/netsage-project/tscore/pkg/persister"
)

// jsonRecord mirrors the literal ingestion contract named in the
// external interface: {path: [str], freq: int_ms, ts: ms, val: number}.
type jsonRecord struct {
	Path []string `json:"path"`
	Freq int64    `json:"freq"`
	Ts   int64    `json:"ts"`
	Val  int64    `json:"val"`
}

// DecodeJSONLines reads newline-delimited JSON records from r and
// dispatches each as a Sample until r is exhausted or ctx is cancelled.
func DecodeJSONLines(ctx context.Context, r io.Reader, sink Sink) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec jsonRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("ingest: decode json line: %w", err)
		}
		s := persister.Sample{Path: rec.Path, Freq: rec.Freq, Ts: rec.Ts, Val: rec.Val}
		if err := sink.Dispatch(ctx, s); err != nil {
			return err
		}
	}
	return scanner.Err()
}
