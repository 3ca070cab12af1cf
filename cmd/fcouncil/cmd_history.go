package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/constants"
	"github.com/nvandessel/forensic-council/internal/models"
	"github.com/nvandessel/forensic-council/internal/store"
	"github.com/nvandessel/forensic-council/internal/summarization"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage stored council reports",
		Long: `Browse and manage the reports of finished runs, newest first.

Examples:
  fcouncil history list
  fcouncil history show current
  fcouncil history delete <id>
  fcouncil history export --output reports.jsonl
  fcouncil history import reports.jsonl`,
	}

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryDeleteCmd(),
		newHistoryClearCmd(),
		newHistoryExportCmd(),
		newHistoryImportCmd(),
	)

	return cmd
}

// reportListItem is the compact JSON form of a history entry.
type reportListItem struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	Timestamp string `json:"timestamp"`
	Summary   string `json:"summary"`
	Agents    int    `json:"agents"`
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative")
			}

			s, _, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			reports, err := s.LoadHistory(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			total := len(reports)
			if limit > 0 && len(reports) > limit {
				reports = reports[:limit]
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				items := make([]reportListItem, 0, len(reports))
				for _, r := range reports {
					items = append(items, reportListItem{
						ID:        r.ID,
						FileName:  r.FileName,
						Timestamp: r.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
						Summary:   r.Summary,
						Agents:    len(r.Agents),
					})
				}
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"reports": items,
					"count":   len(items),
					"total":   total,
				})
			}

			if total == 0 {
				fmt.Fprintln(out, "No reports yet. Run 'fcouncil run <file>' to create one.")
				return nil
			}
			for _, r := range reports {
				fmt.Fprintf(out, "%s  %-14s  %s  (%d findings)\n",
					r.ID, humanize.Time(r.Timestamp), r.FileName, len(r.Agents))
			}
			if total > len(reports) {
				fmt.Fprintf(out, "\nShowing %d of %d reports\n", len(reports), total)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", constants.DefaultHistoryPageSize, "Maximum reports to show (0 for all)")

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|current>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, _, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var r *models.Report
			if args[0] == "current" {
				r, err = s.Current(cmd.Context())
				if err == nil && r == nil {
					return errors.New("no current report")
				}
			} else {
				r, err = s.GetReport(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to load report: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(r)
			}
			fmt.Fprint(cmd.OutOrStdout(), summarization.Markdown(*r))
			return nil
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one report from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, _, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteFromHistory(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"id":      args[0],
					"message": "Report deleted",
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %s\n", args[0])
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every report from the history",
		Long: `Remove every report from the history. The current report is kept.

Asks for confirmation unless --yes is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			yes, _ := cmd.Flags().GetBool("yes")

			s, _, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			reports, err := s.LoadHistory(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}

			if !yes && !jsonOut {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove %d reports from the history? [y/N]: ", len(reports))
				if !confirm(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			if err := s.ClearHistory(cmd.Context()); err != nil {
				return fmt.Errorf("clear failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"cleared": len(reports),
					"message": fmt.Sprintf("Cleared %d reports", len(reports)),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d reports\n", len(reports))
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func confirm(in io.Reader) bool {
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func newHistoryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as JSON lines",
		Long: `Write the history as JSON lines, newest first, to stdout or --output.

Examples:
  fcouncil history export > reports.jsonl
  fcouncil history export --output reports.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			s, _, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if output == "" {
				_, err := store.ExportJSONL(cmd.Context(), s, cmd.OutOrStdout())
				return err
			}

			f, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			n, err := store.ExportJSONL(cmd.Context(), s, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d reports to %s\n", n, output)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")

	return cmd
}

func newHistoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add reports from a JSON lines export to the history",
		Long: `Add reports from a file written by 'fcouncil history export'. The first
line of the file ends up newest. Reports already in the history move to
their imported position. Lines that are not valid reports are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			s, cfg, err := openProjectStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			imported, skipped, err := store.ImportJSONL(cmd.Context(), s, f, newLogger(cfg, false))
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"imported": imported,
					"skipped":  skipped,
					"message":  fmt.Sprintf("Imported %d reports", imported),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d reports (%d skipped)\n", imported, skipped)
			return nil
		},
	}
}
