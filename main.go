// Package main provides the parley service entry point.
// parley routes realtime platform webhooks into meeting lifecycle
// transitions and runs the background summarization worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/cmd"
	"github.com/parleyhq/parley/pkg/buildinfo"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Webhook event router for AI-attended meetings",
	Long: `parley receives webhook deliveries from the realtime communication
platform and drives the meeting lifecycle: activating meetings, connecting
AI agents to live calls, recording transcripts and recordings, answering
post-meeting chat, and summarizing finished meetings.

Commands:
  parley serve    Run the webhook HTTP server
  parley worker   Run the summarization worker`,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get("parley")
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "parley version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go version: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cmd.NewServeCommand())
	rootCmd.AddCommand(cmd.NewWorkerCommand())
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
