package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for xspider.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xspider",
		Short: "Discover hidden influential accounts by crawling the follow graph",
		Long: `xspider crawls who-follows-whom outward from a set of seed accounts,
stores the graph in a local SQLite database, and ranks every account found
by its authority inside that graph compared to its public follower count.

Accounts that the seeds' neighbourhood trusts but that few people follow
surface as hidden gems.

Credentials are read from the configuration file or from the
XSPIDER_CREDENTIALS environment variable (a .env file is loaded first).`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .xspider.yaml in current or home directory)")
	cmd.PersistentFlags().String("db-dir", "",
		"Directory of the SQLite database (default: XDG data directory)")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file to load credentials from")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRankCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
