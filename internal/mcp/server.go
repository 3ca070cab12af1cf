package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/forensic-council/internal/backup"
	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/logging"
	"github.com/nvandessel/forensic-council/internal/ratelimit"
	"github.com/nvandessel/forensic-council/internal/store"
)

// Server wraps the MCP SDK server and exposes a council over it.
type Server struct {
	server       *sdk.Server
	svc          *council.Service
	store        store.ReportStore
	root         string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	retention    backup.Retention
	logger       *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "fcouncil")
	Version string // Server version
	Root    string // Project root directory

	// Service runs the councils. Required.
	Service *council.Service

	// Store is the store Service persists to. Backup and restore use it
	// directly. Required.
	Store store.ReportStore

	// Retention prunes the backup directory after each backup. Defaults to
	// keeping the ten newest.
	Retention *backup.Retention

	Logger *slog.Logger
}

// NewServer creates a new MCP server with council tools. The server takes
// ownership of Service and Store and closes them in Close.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Service == nil || cfg.Store == nil {
		return nil, fmt.Errorf("mcp server requires a council service and a report store")
	}

	localDir := store.LocalPath(cfg.Root)
	if err := os.MkdirAll(localDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", localDir, err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = cfg.Root
	}

	retention := backup.DefaultRetention()
	if cfg.Retention != nil {
		retention = *cfg.Retention
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		svc:          cfg.Service,
		store:        cfg.Store,
		root:         cfg.Root,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(cfg.Root, homeDir, logger),
		retention:    retention,
		logger:       logger,
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run serves MCP over stdio until the client disconnects or ctx is
// cancelled, then closes the server.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close stops any run in flight and releases the store and audit logs.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.svc.Close()
		if err := s.auditLogger.Close(); err != nil {
			s.closeErr = err
		}
		if err := s.store.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
