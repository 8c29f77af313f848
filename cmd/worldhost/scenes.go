package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slotworld/datamodel/internal/config"
	"github.com/slotworld/datamodel/internal/data"
)

func newScenesCmd(load func(*cobra.Command) (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes",
		Short: "Validate and list the scene templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			table, err := data.LoadSceneTable(cfg.World.ScenesDir)
			if err != nil {
				return fmt.Errorf("load scenes: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, name := range table.Names() {
				fmt.Fprintf(out, "%s\t%d top-level slots\n", name, len(table.Get(name).Slots))
			}
			return nil
		},
	}
}
