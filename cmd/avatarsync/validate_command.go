package main

import (
	"errors"
	"fmt"

	"github.com/normanking/avatarsync/internal/lipsync"
	"github.com/spf13/cobra"
)

func newValidateCommand(_ *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <track>",
		Short: "Check a viseme track file and report malformed events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, track, err := lipsync.LoadTrackFile(args[0])
			if u == nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err != nil {
				var malformed *lipsync.MalformedError
				for _, e := range unwrapAll(err) {
					if errors.As(e, &malformed) {
						fmt.Fprintf(out, "dropped: %v\n", malformed)
					}
				}
			}
			fmt.Fprintf(out, "events: %d\n", len(track))
			fmt.Fprintf(out, "duration: %.3fs\n", track.Duration())
			if u.AudioURL != "" {
				fmt.Fprintf(out, "audio: %s\n", u.AudioURL)
			}

			if n := lipsync.Dropped(err); n > 0 {
				return fmt.Errorf("%s: %d malformed visemes", args[0], n)
			}
			return nil
		},
	}
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
