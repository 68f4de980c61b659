// Command datasync is the operator CLI for the insight data-sync
// service: it imports product and income files through the guided
// select/preview/confirm flow, checks for duplicate uploads, and
// manages the upload history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imvu-insight/datasync/internal/logging"
)

var (
	profilePath string
	baseURL     string
	verbose     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "datasync",
	Short: "Import product and income data into the insight service",
	Long: `datasync uploads tabular data files (.csv or .xml) to the insight
data-sync service.

Files are parsed and classified locally, checked against the server for
duplicate uploads by content hash, and then submitted to the matching
import endpoint.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logging.Setup(level, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "Path to the session profile (default: ~/.config/datasync/profile.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Service base URL (overrides the profile)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
