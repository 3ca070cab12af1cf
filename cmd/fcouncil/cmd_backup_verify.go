package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/backup"
)

// verifyResult is what backup verify reports for one file.
type verifyResult struct {
	File    string `json:"file"`
	Version int    `json:"version,omitempty"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a backup's checksum",
		Long: `Check the SHA-256 checksum stored in a compressed backup against its
contents. Plain JSON backups carry no checksum and always pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			res := verifyBackup(args[0])

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			if res.Valid {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				fmt.Fprintf(cmd.OutOrStdout(), "  File: %s\n", res.File)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "FAILED: %s\n  File: %s\n", res.Error, res.File)
			return errors.New(res.Message)
		},
	}
}

func verifyBackup(path string) verifyResult {
	res := verifyResult{File: path}

	version, err := backup.DetectFormat(path)
	if err != nil {
		res.Error = err.Error()
		res.Message = "could not detect backup format"
		return res
	}
	res.Version = version

	if version == backup.FormatV1 {
		res.Valid = true
		res.Message = "V1 format: no checksum to verify"
		return res
	}
	if err := backup.VerifyChecksum(path); err != nil {
		res.Error = err.Error()
		res.Message = "checksum verification failed"
		return res
	}
	res.Valid = true
	res.Message = "OK: checksum verified"
	return res
}
