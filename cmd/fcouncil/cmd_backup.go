package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/backup"
	"github.com/nvandessel/forensic-council/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export the report history to a backup file",
		Long: `Back up the report history and the current report to a compressed file.

Default location: ~/.fcouncil/backups/fcouncil-backup-YYYYMMDD-HHMMSS.json.gz
Old backups are pruned according to the storage.backup_* settings
(default: keep the last 10).

Examples:
  fcouncil backup                              # Backup to default location
  fcouncil backup --output my-backup.json.gz   # Backup to specific file
  fcouncil backup list                         # List all backups
  fcouncil backup verify <file>                # Verify backup integrity`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			if outputPath == "" {
				dir, err := backup.DefaultBackupDir()
				if err != nil {
					return fmt.Errorf("failed to get backup directory: %w", err)
				}
				outputPath = backup.GenerateBackupPath(dir)
			} else {
				allowedDirs, err := pathutil.DefaultAllowedBackupDirsWithProjectRoot(root)
				if err != nil {
					return fmt.Errorf("failed to determine allowed backup dirs: %w", err)
				}
				if err := pathutil.ValidatePath(outputPath, allowedDirs); err != nil {
					return fmt.Errorf("backup path rejected: %w", err)
				}
			}

			s, cfg, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			policy, err := retentionPolicy(cfg)
			if err != nil {
				return err
			}

			result, err := backup.Backup(cmd.Context(), s, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			if _, err := policy.Prune(filepath.Dir(outputPath)); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
			}

			var sizeBytes int64
			if info, err := os.Stat(outputPath); err == nil {
				sizeBytes = info.Size()
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"path":         outputPath,
					"report_count": len(result.Reports),
					"has_current":  result.Current != nil,
					"version":      result.Version,
					"size_bytes":   sizeBytes,
					"message":      fmt.Sprintf("Backup created: %d reports", len(result.Reports)),
				})
			}

			fmt.Fprintf(out, "Backup created: %d reports (%s)\n", len(result.Reports), humanize.Bytes(uint64(sizeBytes)))
			fmt.Fprintf(out, "  Path: %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated in ~/.fcouncil/backups/)")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
	)

	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore reports from a backup file",
		Long: `Restore the report history from a backup file (V1 or V2 format).
Format is auto-detected.

Modes:
  merge   - Skip reports already in the history; keep the current report
            unless there is none (default)
  replace - Clear the history first and restore the backed-up current report

Examples:
  fcouncil restore ~/.fcouncil/backups/fcouncil-backup-20260206-120000.json.gz
  fcouncil restore backup.json.gz --mode replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := args[0]
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeFlag, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeFlag)
			if err != nil {
				return err
			}

			allowedDirs, err := pathutil.DefaultAllowedBackupDirsWithProjectRoot(root)
			if err != nil {
				return fmt.Errorf("failed to determine allowed backup dirs: %w", err)
			}

			s, _, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := backup.Restore(cmd.Context(), s, inputPath, mode, allowedDirs...)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"reports_restored": result.ReportsRestored,
					"reports_skipped":  result.ReportsSkipped,
					"current_restored": result.CurrentRestored,
					"message":          fmt.Sprintf("Restore complete: %d reports", result.ReportsRestored),
				})
			}

			fmt.Fprintf(out, "Restore complete (mode: %s)\n", mode)
			fmt.Fprintf(out, "  Reports: %d restored, %d skipped\n", result.ReportsRestored, result.ReportsSkipped)
			if result.CurrentRestored {
				fmt.Fprintln(out, "  Current report restored")
			}
			return nil
		},
	}

	cmd.Flags().String("mode", "merge", "Restore mode: merge or replace")

	return cmd
}
