// Package output renders a diff run's streamed records and final
// statistics in the wire formats of §6: tab-separated text and
// newline-delimited JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"xdiff/internal/core"
	"xdiff/internal/diff"
)

// Format selects a wire format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Writer streams diff records and a final stats summary to an underlying
// io.Writer in one wire format.
type Writer interface {
	WriteRecord(core.DiffRecord) error
	WriteStats(diff.Stats) error
}

// NewWriter builds a Writer for name ("text" or "json"; empty defaults to
// text), writing to w.
func NewWriter(name string, w io.Writer) (Writer, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatText:
		return &textWriter{w: w}, nil
	case FormatJSON:
		return &jsonWriter{enc: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("output: unsupported format %q; use \"text\" or \"json\"", name)
	}
}

type textWriter struct{ w io.Writer }

// WriteRecord renders "<sign>\t<key cols>\t<extra cols>\n", matching the
// wire format a shell pipeline can cut(1) apart. The row's update-column
// value is not written.
func (t *textWriter) WriteRecord(rec core.DiffRecord) error {
	fields := make([]string, 0, len(rec.Row.Key)+len(rec.Row.Extra)+1)
	fields = append(fields, rec.Sign.String())
	for _, v := range rec.Row.Key {
		fields = append(fields, fmt.Sprint(v))
	}
	for _, v := range rec.Row.Extra {
		fields = append(fields, fmt.Sprint(v))
	}
	_, err := fmt.Fprintln(t.w, strings.Join(fields, "\t"))
	return err
}

func (t *textWriter) WriteStats(stats diff.Stats) error {
	_, err := fmt.Fprintln(t.w, diff.Summary(stats))
	return err
}

type jsonRecord struct {
	Sign string `json:"sign"`
	Row  []any  `json:"row"`
}

type jsonWriter struct{ enc *json.Encoder }

// WriteRecord emits one JSON object per line: {"sign":"+","row":[...]}.
// Key columns come first, then extras; the row's update-column value is
// not written.
func (j *jsonWriter) WriteRecord(rec core.DiffRecord) error {
	row := make([]any, 0, len(rec.Row.Key)+len(rec.Row.Extra))
	for _, v := range rec.Row.Key {
		row = append(row, v)
	}
	for _, v := range rec.Row.Extra {
		row = append(row, v)
	}
	return j.enc.Encode(jsonRecord{Sign: rec.Sign.String(), Row: row})
}

type jsonStats struct {
	Algorithm         string `json:"algorithm"`
	Where             string `json:"where,omitempty"`
	RowsDownloaded    int64  `json:"rowsDownloaded"`
	SegmentsCompared  int64  `json:"segmentsCompared"`
	MaxRecursionDepth int    `json:"maxRecursionDepth"`
	DiffsEmitted      int64  `json:"diffsEmitted"`
}

func (j *jsonWriter) WriteStats(stats diff.Stats) error {
	return j.enc.Encode(jsonStats{
		Algorithm:         stats.Algorithm,
		Where:             stats.Where,
		RowsDownloaded:    stats.RowsDownloaded,
		SegmentsCompared:  stats.SegmentsCompared,
		MaxRecursionDepth: stats.MaxRecursionDepth,
		DiffsEmitted:      stats.DiffsEmitted,
	})
}
