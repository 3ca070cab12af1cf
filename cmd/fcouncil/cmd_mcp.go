package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the council as an MCP server over stdio",
		Long: `Run the council as a Model Context Protocol server on stdin/stdout.

Tools: council_analyze, council_status, council_reset, council_catalog,
council_history, council_report, council_delete, council_clear,
council_backup, council_restore.

Resources: council://reports/current and council://reports/{id}.

Example MCP client configuration:
  {
    "mcpServers": {
      "fcouncil": {
        "command": "fcouncil",
        "args": ["mcp-server", "--root", "/path/to/project"]
      }
    }
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("failed to resolve root: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			logger := newLogger(cfg, false)

			s, err := openStore(absRoot, cfg, logger)
			if err != nil {
				return err
			}

			policy, err := retentionPolicy(cfg)
			if err != nil {
				s.Close()
				return err
			}

			svc, cleanup, err := newService(serviceConfig{
				root:   absRoot,
				cfg:    cfg,
				store:  s,
				logger: logger,
				timing: cfg.Simulation.Timing(),
			})
			if err != nil {
				s.Close()
				return err
			}
			defer cleanup()

			server, err := mcp.NewServer(&mcp.Config{
				Name:      "fcouncil",
				Version:   version,
				Root:      absRoot,
				Service:   svc,
				Store:     s,
				Retention: &policy,
				Logger:    logger,
			})
			if err != nil {
				s.Close()
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return server.Run(ctx)
		},
	}
}
