package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/gravitycar/lorekeeper/internal/adapters/driving/mcp"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server exposing the retrieve tool,
so MCP clients can use lorekeeper as a retrieval backend.

By default, the server communicates over stdio using JSON-RPC. Use
--port to serve streamable HTTP instead.

Examples:
  # Stdio mode (default)
  lorekeeper mcp serve

  # HTTP mode
  lorekeeper mcp serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	if err := initRetrieval(); err != nil {
		return err
	}

	server, err := mcpserver.NewServer(&mcpserver.Ports{
		Retrieval: retrievalService,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		logger.Info("MCP server listening on %s", addr)
		return server.RunHTTP(ctx, addr)
	}
	return server.Run(ctx)
}
