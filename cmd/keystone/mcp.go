package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/internal/cli"
	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/pkg/adapters/memory"
	"github.com/aretw0/keystone/pkg/adapters/mcp"
	"github.com/aretw0/keystone/pkg/survey"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the survey definition and the report generator to AI agents
as MCP tools. Nothing is persisted in this mode.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("listen")
		baseURL, _ := cmd.Flags().GetString("base-url")

		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		// Stdout carries JSON-RPC in stdio mode, so logs always go to Stderr.
		logger := logging.NewWithWriter(os.Stderr, level, cfg.Log.Format)
		log.SetOutput(os.Stderr)

		def := survey.Default()
		if cfg.Survey.Path != "" {
			if def, err = survey.LoadFile(cfg.Survey.Path); err != nil {
				return err
			}
		}
		engine, err := keystone.New(memory.NewStore(), keystone.WithDefinition(def), keystone.WithLogger(logger))
		if err != nil {
			return err
		}
		defer engine.Close()

		srv := mcp.NewServer(engine, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			logger.Info("Starting Keystone MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			ctx := cli.NewSignalContext(context.Background())
			defer ctx.Cancel()

			logger.Info("Starting Keystone MCP Server (SSE)", "address", addr)
			if err := srv.ServeSSE(ctx, addr, baseURL); err != nil {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("listen", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL advertised to SSE clients")
}
