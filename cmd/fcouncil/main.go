package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fcouncil",
		Short: "Forensic council - staged evidence analysis",
		Long: `fcouncil submits a piece of evidence to a council of analysis agents.

Each agent takes its turn in order, thinks for a while and reports a
finding. When the last agent finishes, the findings are summarized into
a report that is kept in a local history.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newCatalogCmd(),
		newHistoryCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newConfigCmd(),
		newServeCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}
