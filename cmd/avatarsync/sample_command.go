package main

import (
	"fmt"

	"github.com/normanking/avatarsync/internal/asset"
	"github.com/normanking/avatarsync/internal/lipsync"
	"github.com/normanking/avatarsync/internal/rig"
	"github.com/spf13/cobra"
)

func newSampleCommand(ctx *commandContext) *cobra.Command {
	var trackFlag string
	var textFlag string
	var duration float64
	var modelFlag string
	var times []float64
	var step float64

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print which morph target a track drives at given times",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var track lipsync.Track
			switch {
			case trackFlag != "":
				u, t, err := lipsync.LoadTrackFile(trackFlag)
				if u == nil {
					return err
				}
				if n := lipsync.Dropped(err); n > 0 {
					fmt.Fprintf(out, "dropped %d malformed visemes\n", n)
				}
				track = t
			case textFlag != "":
				track = lipsync.TrackFromText(textFlag, duration)
			default:
				return fmt.Errorf("--track or --text is required")
			}

			var targets lipsync.MorphTargets = rig.NewVisemeFace()
			if modelFlag != "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				ch, err := asset.Load(modelFlag, placement(cfg))
				if err != nil {
					return err
				}
				if ch.Targets == nil {
					return fmt.Errorf("%s: %w", modelFlag, lipsync.ErrNoMorphTargets)
				}
				targets = ch.Targets
			}
			names := lipsync.TargetNames(targets)

			if len(times) == 0 && step > 0 {
				for t := 0.0; t <= track.Duration(); t += step {
					times = append(times, t)
				}
			}
			for _, t := range times {
				w := lipsync.Sample(track, names, t)
				if i := w.Active(); i >= 0 {
					fmt.Fprintf(out, "%.3f\t%s\n", t, names[i])
				} else {
					fmt.Fprintf(out, "%.3f\t-\n", t)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&trackFlag, "track", "", "Viseme track file (JSON or YAML)")
	cmd.Flags().StringVar(&textFlag, "text", "", "Approximate a track from text instead of reading one")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Stretch the --text track to this many seconds")
	cmd.Flags().StringVar(&modelFlag, "model", "", "Resolve against this model's morph targets instead of the placeholder face")
	cmd.Flags().Float64SliceVar(&times, "at", nil, "Times in seconds to sample")
	cmd.Flags().Float64Var(&step, "step", 0.1, "Sampling step over the whole track when --at is not given")
	return cmd
}
