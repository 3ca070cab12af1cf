package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/backup"
	"github.com/nvandessel/forensic-council/internal/catalog"
	"github.com/nvandessel/forensic-council/internal/config"
	"github.com/nvandessel/forensic-council/internal/council"
	"github.com/nvandessel/forensic-council/internal/engine"
	"github.com/nvandessel/forensic-council/internal/intake"
	"github.com/nvandessel/forensic-council/internal/logging"
	"github.com/nvandessel/forensic-council/internal/store"
)

// loadConfig loads and validates ~/.fcouncil/config.yaml plus environment
// overrides.
func loadConfig() (*config.CouncilConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the stderr logger. Commands that draw their own progress
// pass quiet so info-level records stay out of the way.
func newLogger(cfg *config.CouncilConfig, quiet bool) *slog.Logger {
	if quiet && logging.ParseLevel(cfg.Logging.Level) >= slog.LevelInfo {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

// openStore opens the configured database, or the project database under
// <root>/.fcouncil when none is configured.
func openStore(root string, cfg *config.CouncilConfig, logger *slog.Logger) (*store.SQLiteReportStore, error) {
	var (
		s   *store.SQLiteReportStore
		err error
	)
	if cfg.Storage.DBPath != "" {
		s, err = store.OpenSQLiteReportStore(cfg.Storage.DBPath, logger)
	} else {
		s, err = store.NewSQLiteReportStore(root, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// openProjectStore loads the config and opens the store for commands that
// only touch stored reports.
func openProjectStore(cmd *cobra.Command) (*store.SQLiteReportStore, *config.CouncilConfig, error) {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := openStore(root, cfg, newLogger(cfg, true))
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func loadCatalog(cfg *config.CouncilConfig) (*catalog.Catalog, error) {
	if cfg.Simulation.Catalog == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.Load(cfg.Simulation.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return c, nil
}

func newValidator(cfg *config.CouncilConfig) (intake.Validator, error) {
	maxBytes, err := cfg.Intake.MaxBytes()
	if err != nil {
		return intake.Validator{}, err
	}
	return intake.Validator{
		MaxBytes:        maxBytes,
		AllowedPrefixes: append([]string(nil), cfg.Intake.AllowedTypes...),
	}, nil
}

func retentionPolicy(cfg *config.CouncilConfig) (backup.Retention, error) {
	r, err := backup.RetentionFromConfig(cfg.Storage.BackupMaxCount, cfg.Storage.BackupMaxAge, cfg.Storage.BackupMaxSize)
	if err != nil {
		return r, fmt.Errorf("invalid backup retention: %w", err)
	}
	return r, nil
}

// serviceConfig collects what newService needs from a command.
type serviceConfig struct {
	root        string
	cfg         *config.CouncilConfig
	store       store.ReportStore
	logger      *slog.Logger
	timing      engine.Timing
	disableSave bool
	onCue       func(engine.Cue)
}

// newService builds a council over the wall clock. The returned cleanup
// closes the service and its transition trace, but not the store.
func newService(sc serviceConfig) (*council.Service, func(), error) {
	cat, err := loadCatalog(sc.cfg)
	if err != nil {
		return nil, nil, err
	}
	validator, err := newValidator(sc.cfg)
	if err != nil {
		return nil, nil, err
	}

	trace := logging.NewTransitionLog(store.LocalPath(sc.root), sc.cfg.Logging.Level)
	svc, err := council.New(council.Options{
		Catalog:     cat,
		Timing:      sc.timing,
		Store:       sc.store,
		Validator:   validator,
		DisableSave: sc.disableSave,
		OnCue:       sc.onCue,
		Logger:      sc.logger,
		Trace:       trace,
	})
	if err != nil {
		trace.Close()
		return nil, nil, err
	}

	cleanup := func() {
		svc.Close()
		trace.Close()
	}
	return svc, cleanup, nil
}
