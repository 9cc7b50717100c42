package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trellis",
		Short: "Trellis — conversation sync for plant diagnosis chat",
		Long:  "Trellis runs the chat gateway and sync engine connecting plant owners with horticulture experts.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trellis %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
