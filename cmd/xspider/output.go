package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/report"
)

// formatFlagUsage lists the accepted --format values.
func formatFlagUsage() string {
	names := make([]string, 0, len(report.Formats()))
	for _, f := range report.Formats() {
		names = append(names, string(f))
	}
	return "Output format: " + strings.Join(names, ", ")
}

// getFormatFlag parses --format.
func getFormatFlag(cmd *cobra.Command) (report.Format, error) {
	raw, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", err
	}
	return report.ParseFormat(raw)
}

// withOutput calls write with the file at path, or with stdout when path
// is empty. Parent directories are created as needed.
func withOutput(cmd *cobra.Command, path string, write func(io.Writer) error) (err error) {
	if path == "" {
		return write(cmd.OutOrStdout())
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Exports can contain private crawl data, so they are owner-only.
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	return write(f)
}
