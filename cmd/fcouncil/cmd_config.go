package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings in ~/.fcouncil/config.yaml",
		Long: `Show or change settings in ~/.fcouncil/config.yaml.

list and get show the effective value, including FCOUNCIL_* environment
overrides. set only ever writes the file.

Examples:
  fcouncil config list
  fcouncil config get simulation.stage
  fcouncil config set simulation.lead_in lean
  fcouncil config set intake.max_size "50 MiB"`,
	}
	cmd.AddCommand(newConfigListCmd(), newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			values := make(map[string]string, len(config.Keys()))
			for _, key := range config.Keys() {
				values[key], _ = cfg.Get(key)
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(values)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, key := range config.Keys() {
				fmt.Fprintf(tw, "%s\t%s\n", key, valueOrDefault(values[key], "(not set)"))
			}
			return tw.Flush()
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			value, ok := cfg.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown configuration key: %s", args[0])
			}
			return printSetting(cmd, "", args[0], value)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}

			// Start from the file alone so environment overrides are not saved.
			cfg, err := config.LoadFromFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			stored, _ := cfg.Get(args[0])
			return printSetting(cmd, "updated", args[0], stored)
		},
	}
}

// printSetting reports one key. A non-empty status marks a change.
func printSetting(cmd *cobra.Command, status, key, value string) error {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		out := map[string]string{"key": key, "value": value}
		if status != "" {
			out["status"] = status
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
	}
	if status != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
	return nil
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
