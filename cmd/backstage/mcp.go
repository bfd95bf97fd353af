// ABOUTME: MCP server command implementation for backstage.
// ABOUTME: Starts the MCP server in stdio mode for AI agent integration.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcppkg "github.com/2389-research/backstage/internal/mcp"
	"github.com/2389-research/backstage/internal/metrics"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server (stdio mode)",
	Long: `Start the Model Context Protocol server for AI agent integration.

The MCP server communicates via stdio, allowing AI agents to log in,
read profiles and the feed, and publish posts through a standardized
protocol. Set metrics.addr to expose Prometheus metrics while it runs.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopMetrics := metrics.StartServer(globalConfig.Metrics.Addr)
	defer stopMetrics()

	server, err := mcppkg.NewServer(globalClient, mcppkg.WithLogger(globalLogger))
	if err != nil {
		return err
	}

	globalLogger.Info("mcp server starting", "origin", globalClient.Origin())
	return server.Serve(ctx)
}
