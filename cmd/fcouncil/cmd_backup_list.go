package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/backup"
)

// backupListEntry is the JSON form of one backup file.
type backupListEntry struct {
	Path        string `json:"path"`
	Version     int    `json:"version"`
	Size        int64  `json:"size_bytes"`
	CreatedAt   string `json:"created_at"`
	ReportCount int    `json:"report_count,omitempty"`
	HasCurrent  bool   `json:"has_current,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups in the default backup directory",
		Long: `List backups in ~/.fcouncil/backups, newest first, with their format
version, size and report count.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir, err := backup.DefaultBackupDir()
			if err != nil {
				return fmt.Errorf("failed to get backup directory: %w", err)
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				entries := make([]backupListEntry, 0, len(backups))
				for _, b := range backups {
					e := backupListEntry{
						Path:      b.Path,
						Version:   b.Version,
						Size:      b.Size,
						CreatedAt: b.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
					}
					if b.Header != nil {
						e.ReportCount = b.Header.Reports
						e.HasCurrent = b.Header.HasCurrent
						e.Checksum = b.Header.Checksum
					}
					entries = append(entries, e)
				}
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"backups":     entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}

			if len(backups) == 0 {
				fmt.Fprintf(out, "No backups found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(out, "Backups in %s:\n", dir)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			var total uint64
			for _, b := range backups {
				total += uint64(b.Size)
				reports := "?"
				if b.Header != nil {
					reports = strconv.Itoa(b.Header.Reports)
				}
				fmt.Fprintf(tw, "  %s\tv%d\t%s\t%s reports\t%s\n",
					humanize.Time(b.CreatedAt), b.Version, humanize.Bytes(uint64(b.Size)), reports, filepath.Base(b.Path))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Total: %d backups, %s\n", len(backups), humanize.Bytes(total))
			return nil
		},
	}
}
