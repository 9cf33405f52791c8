package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/xspider/internal/model"
)

// ruleWidth is the width of section separators.
const ruleWidth = 78

// SimpleWriter outputs human-readable text tables.
// This format is designed for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so the output pipes cleanly into files and other tools.
type SimpleWriter struct {
	baseWriter

	// showCategories adds the per-category count section.
	showCategories bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithCategorySummary toggles the category count section.
func WithCategorySummary(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showCategories = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:     newBaseWriter(output),
		showCategories: true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WriteRankings implements Writer.
func (w *SimpleWriter) WriteRankings(records []model.RankingRecord) error {
	var sb strings.Builder

	writeSection(&sb, "RANKINGS")
	if len(records) == 0 {
		sb.WriteString("  No rankings. Run `xspider rank` after a crawl.\n\n")
		_, err := io.WriteString(w.output, sb.String())
		return err
	}

	fmt.Fprintf(&sb, "%5s  %-20s  %-12s  %10s  %10s  %10s  %5s\n",
		"RANK", "ACCOUNT", "CATEGORY", "HIDDEN", "AUTHORITY", "FOLLOWERS", "SEEDS")
	for _, r := range records {
		fmt.Fprintf(&sb, "%5d  %-20s  %-12s  %10.6f  %10.6f  %10d  %5d\n",
			r.Rank,
			truncateString(displayHandle(r.Handle, r.NodeID), 20),
			r.Category,
			r.Hidden,
			r.Authority,
			r.FollowersCount,
			r.SeedFollowers,
		)
	}
	sb.WriteString("\n")

	if w.showCategories {
		counts := countCategories(records)
		writeSection(&sb, "CATEGORIES")
		for _, c := range model.Categories() {
			fmt.Fprintf(&sb, "  %-12s %d\n", c, counts[c])
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w.output, sb.String())
	return err
}

// WriteNodes implements GraphWriter.
func (w *SimpleWriter) WriteNodes(nodes []model.Node) error {
	var sb strings.Builder

	writeSection(&sb, "NODES")
	fmt.Fprintf(&sb, "%-20s  %-20s  %5s  %4s  %10s  %10s\n",
		"ID", "HANDLE", "DEPTH", "SEED", "FOLLOWERS", "FOLLOWING")
	for _, n := range nodes {
		seed := ""
		if n.IsSeed {
			seed = "yes"
		}
		fmt.Fprintf(&sb, "%-20s  %-20s  %5d  %4s  %10d  %10d\n",
			n.ID, truncateString(displayHandle(n.Handle, ""), 20), n.Depth, seed, n.FollowersCount, n.FollowingCount)
	}
	fmt.Fprintf(&sb, "\n  TOTAL: %d nodes\n\n", len(nodes))

	_, err := io.WriteString(w.output, sb.String())
	return err
}

// WriteEdges implements GraphWriter.
func (w *SimpleWriter) WriteEdges(edges []model.Edge) error {
	var sb strings.Builder

	writeSection(&sb, "EDGES")
	for _, e := range edges {
		fmt.Fprintf(&sb, "  %s -> %s\n", e.SourceID, e.TargetID)
	}
	fmt.Fprintf(&sb, "\n  TOTAL: %d edges\n\n", len(edges))

	_, err := io.WriteString(w.output, sb.String())
	return err
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func countCategories(records []model.RankingRecord) map[model.Category]int {
	counts := make(map[model.Category]int, len(model.Categories()))
	for _, r := range records {
		counts[r.Category]++
	}
	return counts
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
