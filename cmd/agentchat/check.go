// ABOUTME: check subcommand: probes the agent API endpoints and prints the results
// ABOUTME: Needs only the agent section of the config, no store

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/agentchat/internal/agentapi"
)

var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the agent API endpoints",
	Long: `Issue three probe calls against the agent API and print what came back:

  POST thread path   should create a thread when the API is enabled
  GET  thread path   usually rejected, shows the endpoint is reachable
  POST run path      with an empty message list, rejected but proves the call shape`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", agentapi.ProbeTimeout, "Per-probe timeout")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAgentClient(cfg, logger)
	if err != nil {
		return err
	}

	probes := agentapi.DefaultProbes(cfg.Agent.ThreadPath, cfg.Agent.RunPath)
	results := agentapi.Sanity(cmd.Context(), client, probes, checkTimeout)
	return printProbeResults(cmd.OutOrStdout(), results)
}

func printProbeResults(w io.Writer, results []agentapi.ProbeResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encoding probe results: %w", err)
	}
	return nil
}
