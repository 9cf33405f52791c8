package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnknownFormat is returned for format names no writer handles.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is an output format name.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatMarkdown Format = "markdown"
)

// Formats lists every format in flag help order.
func Formats() []Format {
	return []Format{FormatText, FormatCSV, FormatJSON, FormatJSONL, FormatMarkdown}
}

// ParseFormat converts a flag value into a Format. "md" and "ndjson" are
// accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt", "":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: text, csv, json, jsonl, markdown)", ErrUnknownFormat, s)
	}
}

// Extension returns the conventional file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	case FormatJSONL:
		return ".jsonl"
	case FormatMarkdown:
		return ".md"
	default:
		return ".txt"
	}
}

// NewWriter returns the ranking Writer for format.
func NewWriter(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output), nil
	case FormatCSV:
		return NewCSVWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatJSONL:
		return NewJSONLWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// NewGraphWriter returns the GraphWriter for format. Markdown is not a
// graph format.
func NewGraphWriter(format Format, output io.Writer) (GraphWriter, error) {
	switch format {
	case FormatText:
		return NewSimpleWriter(output), nil
	case FormatCSV:
		return NewCSVWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatJSONL:
		return NewJSONLWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q cannot export nodes or edges", ErrUnknownFormat, format)
	}
}
