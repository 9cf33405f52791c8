package report

import (
	"io"

	"github.com/nao1215/xspider/internal/model"
)

// Writer renders ranking records.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the same
// API.
type Writer interface {
	// WriteRankings outputs records in the order given.
	WriteRankings(records []model.RankingRecord) error
}

// GraphWriter renders raw graph data.
type GraphWriter interface {
	// WriteNodes outputs node records in the order given.
	WriteNodes(nodes []model.Node) error

	// WriteEdges outputs edge records in the order given.
	WriteEdges(edges []model.Edge) error
}

// MultiWriter writes rankings to multiple Writers.
// This is useful for printing to the terminal and saving a file at once.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because each destination may use a different
// format.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteRankings outputs the records to every Writer.
// Stops on first error encountered.
func (m *MultiWriter) WriteRankings(records []model.RankingRecord) error {
	for _, w := range m.writers {
		if err := w.WriteRankings(records); err != nil {
			return err
		}
	}
	return nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// displayHandle returns "@handle", or the id when the handle is unknown.
func displayHandle(handle, id string) string {
	if handle == "" {
		return id
	}
	return "@" + handle
}
