// Package commands implements the txnfsalctl CLI commands.
package commands

import "github.com/spf13/cobra"

// Build-time version information, injected via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "txnfsalctl",
	Short: "Operate a transactional stackable FSAL core out of band",
	Long: `txnfsalctl drives the transactional core's crash recovery and
inspects its identity map and transaction log directly against an on-disk
KV store, for use when the FSAL process is not running.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("txnfsalctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}
