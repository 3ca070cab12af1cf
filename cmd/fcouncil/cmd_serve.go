package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/api"
	"github.com/nvandessel/forensic-council/internal/ratelimit"
)

// shutdownTimeout bounds how long serve waits for open requests on exit.
const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the council over HTTP",
		Long: `Serve the council over HTTP. Clients submit evidence with POST /api/run,
follow the run on the /api/run/stream WebSocket and browse reports under
/api/reports.

The listen address comes from server.addr (default 127.0.0.1:7411).

Examples:
  fcouncil serve
  fcouncil serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			addr, _ := cmd.Flags().GetString("addr")

			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("failed to resolve root: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			logger := newLogger(cfg, false)

			s, err := openStore(absRoot, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			svc, cleanup, err := newService(serviceConfig{
				root:   absRoot,
				cfg:    cfg,
				store:  s,
				logger: logger,
				timing: cfg.Simulation.Timing(),
			})
			if err != nil {
				return err
			}
			defer cleanup()

			maxUpload, _ := cfg.Intake.MaxBytes()
			srv := api.NewServer(svc, api.Options{
				Root:           absRoot,
				MaxUploadBytes: maxUpload,
				Version:        version,
				Logger:         logger,
				RunLimiter:     ratelimit.NewRunLimiter(),
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			sig := make(chan os.Signal, 1)
			notifySignals(sig)
			defer signal.Stop(sig)

			select {
			case err := <-errCh:
				return err
			case <-sig:
			case <-cmd.Context().Done():
			}

			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown failed: %w", err)
			}
			return <-errCh
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")

	return cmd
}
