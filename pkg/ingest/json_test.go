package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsage-project/tscore/pkg/persister"
)

type fakeSink struct {
	samples []persister.Sample
}

func (f *fakeSink) Dispatch(ctx context.Context, s persister.Sample) error {
	f.samples = append(f.samples, s)
	return nil
}

func TestDecodeJSONLines(t *testing.T) {
	input := strings.NewReader(
		`{"path":["r1","ifIn"],"freq":30000,"ts":1000000,"val":0}` + "\n" +
			`{"path":["r1","ifIn"],"freq":30000,"ts":1030000,"val":30000}` + "\n",
	)
	sink := &fakeSink{}
	require.NoError(t, DecodeJSONLines(context.Background(), input, sink))

	require.Len(t, sink.samples, 2)
	assert.Equal(t, []string{"r1", "ifIn"}, sink.samples[0].Path)
	assert.Equal(t, int64(30000), sink.samples[1].Val)
}

func TestDecodeJSONLinesSkipsBlank(t *testing.T) {
	input := strings.NewReader("\n" + `{"path":["a"],"freq":1000,"ts":1,"val":1}` + "\n\n")
	sink := &fakeSink{}
	require.NoError(t, DecodeJSONLines(context.Background(), input, sink))
	require.Len(t, sink.samples, 1)
}
