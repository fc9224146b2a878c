// ABOUTME: serve subcommand: runs the browser chat UI on TCP or a Tailscale node
// ABOUTME: Prints a startup summary and shuts down gracefully on SIGINT/SIGTERM

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agentchat/internal/webui"
)

const banner = `
                         _        _           _
  __ _  __ _  ___ _ __ | |_  ___| |__   __ _| |_
 / _' |/ _' |/ _ \ '_ \| __|/ __| '_ \ / _' | __|
| (_| | (_| |  __/ | | | |_| (__| | | | (_| | |_
 \__,_|\__, |\___|_| |_|\__|\___|_| |_|\__,_|\__|
       |___/
`

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web chat UI",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveAddr != "" {
		a.cfg.Server.HTTPAddr = serveAddr
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", a.cfgPath)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", a.cfg.Agent.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", a.cfg.Database.Driver)
	if a.cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Print("Tailscale: ")
		cyan.Print(a.cfg.Tailscale.Hostname)
		if a.cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", a.cfg.Server.HTTPAddr)
	}
	if a.cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", a.cfg.Metrics.Path)
	} else {
		green.Print("    ▶ ")
		yellow.Println("Metrics:   disabled")
	}
	if a.cfg.Warehouse.Enabled() {
		green.Print("    ▶ ")
		fmt.Printf("Warehouse: up to %d rows per generated query\n", a.cfg.Warehouse.MaxRows)
	}
	fmt.Println()

	opts := webui.Options{SQL: a.sqlRunner()}
	if a.cfg.Metrics.Enabled {
		opts.MetricsPath = a.cfg.Metrics.Path
	}
	ui := webui.New(a.svc, a.store, a.identity, opts, a.logger)
	srv := webui.NewServer(ui.Routes(), a.cfg.Server, a.cfg.Tailscale, a.logger)

	a.logger.Info("starting agentchat web UI",
		"config", a.cfgPath,
		"http_addr", a.cfg.Server.HTTPAddr,
		"tailscale", a.cfg.Tailscale.Enabled,
	)
	return srv.Run(ctx)
}
