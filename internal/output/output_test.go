package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdiff/internal/core"
	"xdiff/internal/diff"
)

func TestNewWriterDefaultsToText(t *testing.T) {
	w, err := NewWriter("", &bytes.Buffer{})
	require.NoError(t, err)
	assert.IsType(t, &textWriter{}, w)
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	_, err := NewWriter("yaml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestTextWriterWriteRecord(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("text", &buf)
	require.NoError(t, err)

	rec := core.DiffRecord{Sign: core.SignLeft, Row: core.Row{Key: core.Key{int64(1)}, Extra: []core.Value{"alice"}}}
	require.NoError(t, w.WriteRecord(rec))
	assert.Equal(t, "-\t1\talice\n", buf.String())
}

func TestTextWriterWriteStats(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("text", &buf)
	require.NoError(t, err)

	stats := diff.Stats{Algorithm: "hashdiff", RowsDownloaded: 10, DiffsEmitted: 2}
	require.NoError(t, w.WriteStats(stats))
	assert.Contains(t, buf.String(), "algorithm=hashdiff")
	assert.Contains(t, buf.String(), "diffs_emitted=2")
}

func TestJSONWriterWriteRecord(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("json", &buf)
	require.NoError(t, err)

	rec := core.DiffRecord{Sign: core.SignRight, Row: core.Row{Key: core.Key{int64(1)}, Extra: []core.Value{"bob"}}}
	require.NoError(t, w.WriteRecord(rec))

	var decoded jsonRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "+", decoded.Sign)
	assert.Equal(t, []any{float64(1), "bob"}, decoded.Row)
}

func TestJSONWriterWriteStats(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter("json", &buf)
	require.NoError(t, err)

	stats := diff.Stats{Algorithm: "joindiff", SegmentsCompared: 4}
	require.NoError(t, w.WriteStats(stats))

	var decoded jsonStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "joindiff", decoded.Algorithm)
	assert.Equal(t, int64(4), decoded.SegmentsCompared)
}
