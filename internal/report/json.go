package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/xspider/internal/model"
)

// JSONWriter outputs records as a single JSON array.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because the records are flat structs with tags and the
// output has to match what jq and spreadsheets expect, nothing more.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WriteRankings implements Writer.
func (w *JSONWriter) WriteRankings(records []model.RankingRecord) error {
	return w.writeJSON(nonNil(records))
}

// WriteNodes implements GraphWriter.
func (w *JSONWriter) WriteNodes(nodes []model.Node) error {
	return w.writeJSON(nonNil(nodes))
}

// WriteEdges implements GraphWriter.
func (w *JSONWriter) WriteEdges(edges []model.Edge) error {
	return w.writeJSON(nonNil(edges))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) error {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	_, err = w.output.Write(data)
	return err
}

// JSONLWriter outputs one compact JSON object per line.
type JSONLWriter struct {
	baseWriter
}

// NewJSONLWriter creates a JSONLWriter that outputs to the given writer.
func NewJSONLWriter(output io.Writer) *JSONLWriter {
	return &JSONLWriter{baseWriter: newBaseWriter(output)}
}

// WriteRankings implements Writer.
func (w *JSONLWriter) WriteRankings(records []model.RankingRecord) error {
	return writeLines(w.output, records)
}

// WriteNodes implements GraphWriter.
func (w *JSONLWriter) WriteNodes(nodes []model.Node) error {
	return writeLines(w.output, nodes)
}

// WriteEdges implements GraphWriter.
func (w *JSONLWriter) WriteEdges(edges []model.Edge) error {
	return writeLines(w.output, edges)
}

func writeLines[T any](output io.Writer, items []T) error {
	enc := json.NewEncoder(output)
	for _, item := range items {
		// Encode terminates each value with a newline.
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// nonNil makes empty input encode as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
