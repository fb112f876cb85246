package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes editing sessions as MCP tools so agents can create, validate and
simulate flows.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		app, debug, err := loadApp(cmd)
		if err != nil {
			return err
		}
		storage, err := app.OpenStorage()
		if err != nil {
			return err
		}
		defer storage.Close()

		srv := mcp.NewServer(app.NewManager(storage, nil, debug), mcp.WithLogger(app.Logger))

		switch transport {
		case "stdio":
			app.Logger.Info("Starting chatflow MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			ctx := cli.NewSignalContext(context.Background())
			defer ctx.Cancel()

			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("MCP server failed: %w", err)
			}
			app.Logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
