package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/normanking/avatarsync/internal/asset"
	"github.com/spf13/cobra"
)

func newClipsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clips <model>",
		Short: "List the clips, morph targets and bones of a glTF/GLB model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ch, err := asset.Load(args[0], placement(cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLIP\tFROM\tTO\tCHANNELS")
			for _, c := range ch.Animations {
				fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%d\n", c.Name(), c.From, c.To, len(c.Channels))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			targets := 0
			if ch.Targets != nil {
				targets = ch.Targets.Count()
			}
			fmt.Fprintf(out, "morph targets: %d\n", targets)
			fmt.Fprintf(out, "bones: %d\n", len(ch.Skeleton.Bones()))
			return nil
		},
	}
}
