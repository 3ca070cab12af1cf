package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/forensic-council/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the council roster in stage order",
		Long: `Show the agents that make up the council, in the order they take
their turns. The roster comes from simulation.catalog in the config, or the
built-in roster when none is set.

Use --file to check a roster file without configuring it.

Examples:
  fcouncil catalog
  fcouncil catalog --file ./agents.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			file, _ := cmd.Flags().GetString("file")

			var (
				cat *catalog.Catalog
				err error
			)
			if file != "" {
				cat, err = catalog.Load(file)
				if err != nil {
					return fmt.Errorf("invalid roster: %w", err)
				}
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if cat, err = loadCatalog(cfg); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"agents": cat.All(),
					"count":  cat.Size(),
				})
			}

			for i, a := range cat.All() {
				fmt.Fprintf(out, "%d. %s (%s)\n", i+1, a.Name, a.Role)
				if a.Description != "" {
					fmt.Fprintf(out, "   %s\n", a.Description)
				}
			}
			fmt.Fprintf(out, "\n%d agents\n", cat.Size())
			return nil
		},
	}

	cmd.Flags().String("file", "", "Roster YAML file to load instead of the configured one")

	return cmd
}
