package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wavecache/internal/registry"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim summary files whose last owner released them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			reg, err := registry.Open(cfg)
			if err != nil {
				return err
			}
			defer reg.Close()

			reclaimed, err := reg.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d summary files\n", reclaimed)
			return nil
		},
	}
}
