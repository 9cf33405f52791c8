package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/xspider/internal/config"
)

//go:embed templates/xspider.yaml
var configTemplate embed.FS

// templatePath is the template's path inside configTemplate.
const templatePath = "templates/xspider.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new xspider configuration file",
		Long: `Initialize creates a new .xspider.yaml configuration file in the current directory.

The generated file includes:
- Every crawl, egress and ranking setting with its default value
- Commented placeholders for seeds, credentials and proxies

Examples:
  # Create .xspider.yaml in current directory
  xspider init

  # Create config file at a specific path
  xspider init -o ~/.config/xspider/config.yaml

  # Force overwrite existing file
  xspider init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	// The template must load with the same schema the loader uses.
	var file config.File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("config template is invalid: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file will hold credentials.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to add:")
	fmt.Fprintln(out, "  - Seed accounts")
	fmt.Fprintln(out, "  - Upstream credentials (or set XSPIDER_CREDENTIALS in .env)")
	fmt.Fprintln(out, "  - Egress proxies")

	return nil
}
