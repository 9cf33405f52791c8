package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/report"
)

// Export targets.
const (
	exportRankings = "rankings"
	exportNodes    = "nodes"
	exportEdges    = "edges"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export rankings|nodes|edges",
		Short: "Export stored rankings, nodes or edges",
		Long: `Export writes the stored ranking table, node list or edge list without
recomputing anything. Run "xspider rank" first to refresh rankings.

Markdown is available for rankings only.

Examples:
  # All rankings as CSV
  xspider export rankings --format csv -o rankings.csv

  # The follow graph for external tools
  xspider export edges --format jsonl > edges.jsonl`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{exportRankings, exportNodes, exportEdges},
		RunE:      runExportCmd,
	}

	cmd.Flags().StringP("format", "f", string(report.FormatCSV), formatFlagUsage())
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	cmd.Flags().IntP("top", "k", 0, "Export only the k best ranked accounts (rankings only, 0 = all)")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := getFormatFlag(cmd)
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}
	if top < 0 {
		return fmt.Errorf("--top must not be negative: %d", top)
	}

	setupLogger(cfg, cmd.ErrOrStderr())

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	target := args[0]

	if target == exportRankings {
		records, err := store.Rankings(ctx)
		if err != nil {
			return fmt.Errorf("failed to load rankings: %w", err)
		}
		if top > 0 && len(records) > top {
			records = records[:top]
		}
		return withOutput(cmd, output, func(w io.Writer) error {
			writer, err := report.NewWriter(format, w)
			if err != nil {
				return err
			}
			return writer.WriteRankings(records)
		})
	}

	// Validate the format before creating an output file.
	if _, err := report.NewGraphWriter(format, io.Discard); err != nil {
		return err
	}

	switch target {
	case exportNodes:
		nodes, err := store.Nodes(ctx)
		if err != nil {
			return fmt.Errorf("failed to load nodes: %w", err)
		}
		return withOutput(cmd, output, func(w io.Writer) error {
			writer, err := report.NewGraphWriter(format, w)
			if err != nil {
				return err
			}
			return writer.WriteNodes(nodes)
		})
	default:
		edges, err := store.Edges(ctx)
		if err != nil {
			return fmt.Errorf("failed to load edges: %w", err)
		}
		return withOutput(cmd, output, func(w io.Writer) error {
			writer, err := report.NewGraphWriter(format, w)
			if err != nil {
				return err
			}
			return writer.WriteEdges(edges)
		})
	}
}
