// ABOUTME: Entry point for agentchat, a threaded chat client for a managed agent API
// ABOUTME: Wires cobra subcommands for the REPL, web UI, listings and endpoint checks

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set by goreleaser at build time.
var version = "dev"

// configPath is the --config flag value.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "agentchat",
	Short: "Threaded, persistent chat against a managed agent API",
	Long: `agentchat keeps local threads in step with a remote agent service.

Each thread is created remotely, every turn is sent with the id of the
message it follows, and every remote call is recorded in an audit trail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $AGENTCHAT_CONFIG or ~/.config/agentchat/config.yaml)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agentchat %s\n", version)
	},
}
