package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/xspider/internal/model"
)

// defaultMarkdownTop is how many rows the ranking table shows.
const defaultMarkdownTop = 50

// MarkdownWriter outputs rankings as a Markdown report.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, GitHub alerts and mermaid charts
// without hand-escaping.
type MarkdownWriter struct {
	baseWriter

	title string
	top   int
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithTitle sets the report heading.
func WithTitle(title string) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		if title != "" {
			w.title = title
		}
	}
}

// WithTableRows limits how many accounts the ranking table lists.
func WithTableRows(n int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		if n > 0 {
			w.top = n
		}
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		title:      "xspider Ranking Report",
		top:        defaultMarkdownTop,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteRankings implements Writer.
func (w *MarkdownWriter) WriteRankings(records []model.RankingRecord) error {
	md := markdown.NewMarkdown(w.output)
	counts := countCategories(records)

	// Header
	w.writeHeader(md, records)

	// Category summary
	w.writeSummary(md, records, counts)

	// Ranking table
	w.writeTable(md, records)

	// Footer
	w.writeFooter(md)

	return md.Build()
}

// writeHeader writes the title and the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, records []model.RankingRecord) {
	md.H1(w.title)
	md.PlainText("")

	computed := "-"
	if len(records) > 0 && !records[0].ComputedAt.IsZero() {
		computed = records[0].ComputedAt.UTC().Format("2006-01-02 15:04:05 MST")
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Accounts Ranked", strconv.Itoa(len(records))},
			{"Computed At", computed},
			{"Ordered By", "hidden score (authority / ln(followers + 2))"},
		},
	})
	md.PlainText("")
}

// writeSummary writes the category counts, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, records []model.RankingRecord, counts map[model.Category]int) {
	md.H2("Category Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(model.Categories())+1)
	for _, c := range model.Categories() {
		rows = append(rows, []string{categoryLabel(c), strconv.Itoa(counts[c])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(len(records)) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(records) > 0 {
		w.writePieChart(md, counts)
	}

	switch gems := counts[model.CategoryHiddenGem]; {
	case gems > 0:
		md.Importantf("%d hidden gem(s) found: low follower counts, followed by several seeds.", gems)
	case len(records) == 0:
		md.Note("No rankings yet. Crawl first, then run `xspider rank`.")
	default:
		md.Tip("No hidden gems at the current thresholds. Lowering the seed-follower minimum may surface candidates.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart for the category distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.Category]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Category Distribution"),
		piechart.WithShowData(true),
	)
	for _, c := range model.Categories() {
		if counts[c] > 0 {
			chart.LabelAndIntValue(c.String(), uint64(counts[c]))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeTable writes the top accounts.
func (w *MarkdownWriter) writeTable(md *markdown.Markdown, records []model.RankingRecord) {
	md.H2("Top Accounts")
	md.PlainText("")

	if len(records) == 0 {
		md.PlainText("No accounts ranked.")
		md.PlainText("")
		return
	}

	shown := records[:min(w.top, len(records))]
	rows := make([][]string, len(shown))
	for i, r := range shown {
		rows[i] = []string{
			strconv.Itoa(r.Rank),
			"`" + truncateString(displayHandle(r.Handle, r.NodeID), 40) + "`",
			categoryLabel(r.Category),
			strconv.FormatFloat(r.Hidden, 'f', 6, 64),
			strconv.FormatFloat(r.Authority, 'f', 6, 64),
			strconv.FormatInt(r.FollowersCount, 10),
			strconv.Itoa(r.SeedFollowers),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Rank", "Account", "Category", "Hidden", "Authority", "Followers", "Seed Followers"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(records) > len(shown) {
		md.PlainTextf("*%d more accounts omitted; export as CSV for the full list.*", len(records)-len(shown))
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by xspider on %s*", time.Now().UTC().Format("2006-01-02"))
}

func categoryLabel(c model.Category) string {
	switch c {
	case model.CategoryHiddenGem:
		return "💎 Hidden Gem"
	case model.CategoryRisingStar:
		return "🚀 Rising Star"
	case model.CategoryEstablished:
		return "🏛️ Established"
	default:
		return "🌱 Potential"
	}
}
