package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/xspider/internal/model"
)

// CSVWriter outputs records as comma-separated rows with a header line.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// WriteRankings implements Writer.
func (w *CSVWriter) WriteRankings(records []model.RankingRecord) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{
		"rank", "node_id", "handle", "category", "authority", "hidden",
		"in_degree", "out_degree", "followers_count", "seed_followers", "computed_at",
	})
	for _, r := range records {
		rows = append(rows, []string{
			strconv.Itoa(r.Rank),
			r.NodeID,
			r.Handle,
			r.Category.String(),
			formatScore(r.Authority),
			formatScore(r.Hidden),
			strconv.Itoa(r.InDegree),
			strconv.Itoa(r.OutDegree),
			strconv.FormatInt(r.FollowersCount, 10),
			strconv.Itoa(r.SeedFollowers),
			formatTime(r.ComputedAt),
		})
	}
	return w.writeAll(rows)
}

// WriteNodes implements GraphWriter.
func (w *CSVWriter) WriteNodes(nodes []model.Node) error {
	rows := make([][]string, 0, len(nodes)+1)
	rows = append(rows, []string{
		"id", "handle", "display_name", "followers_count", "following_count", "is_seed", "depth", "first_seen_at",
	})
	for _, n := range nodes {
		rows = append(rows, []string{
			n.ID,
			n.Handle,
			n.DisplayName,
			strconv.FormatInt(n.FollowersCount, 10),
			strconv.FormatInt(n.FollowingCount, 10),
			strconv.FormatBool(n.IsSeed),
			strconv.Itoa(n.Depth),
			formatTime(n.FirstSeenAt),
		})
	}
	return w.writeAll(rows)
}

// WriteEdges implements GraphWriter.
func (w *CSVWriter) WriteEdges(edges []model.Edge) error {
	rows := make([][]string, 0, len(edges)+1)
	rows = append(rows, []string{"source_id", "target_id", "discovered_at"})
	for _, e := range edges {
		rows = append(rows, []string{e.SourceID, e.TargetID, formatTime(e.DiscoveredAt)})
	}
	return w.writeAll(rows)
}

func (w *CSVWriter) writeAll(rows [][]string) error {
	cw := csv.NewWriter(w.output)
	// WriteAll flushes and reports the first write error.
	return cw.WriteAll(rows)
}

// formatScore keeps enough precision to tell close scores apart.
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
