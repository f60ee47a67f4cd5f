package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"whisperdesk/internal/audio"
	"whisperdesk/internal/engine"
	"whisperdesk/internal/status"
	"whisperdesk/internal/util/deps"
	"whisperdesk/internal/util/format"
)

func newEstimateCmd() *cobra.Command {
	var seconds float64
	var all bool
	cmd := &cobra.Command{
		Use:           "estimate [audio]",
		Short:         "Estimate processing time for an audio file or duration",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settingsFrom(cmd)
			if len(args) == 0 && seconds <= 0 {
				return &ExitError{Code: ExitCLIError, Err: errors.New("give an audio file or --seconds")}
			}

			device, err := engine.DetectDevice(s.Device)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}

			if len(args) == 1 {
				ff, err := deps.FindFFmpeg(s.FFmpegBinary)
				if err != nil {
					return &ExitError{Code: ExitMissingDep, Err: err}
				}
				log, closer := newLogger(s, false)
				if closer != nil {
					defer closer.Close()
				}
				samples, err := audio.NewLoader(ff, log).Load(cmd.Context(), args[0])
				if err != nil {
					return &ExitError{Code: ExitTranscribeError, Err: err}
				}
				seconds = audio.Duration(samples)
			}

			factors := s.Factors()
			df := status.DeviceFactor(device.Accelerated)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Audio:     %s (%s)\n", format.Seconds(seconds), format.Clock(seconds))
			fmt.Fprintf(out, "Hardware:  %s\n", device.Label())
			if all {
				for _, size := range factors.Sizes() {
					mf := factors.Factor(size)
					fmt.Fprintf(out, "  %-8s x%-4.1f %s\n", size, mf, format.Seconds(status.EstimateSeconds(seconds, mf, df)))
				}
				return nil
			}
			mf := factors.Factor(s.Model)
			fmt.Fprintf(out, "Model:     %s (x%.1f)\n", s.Model, mf)
			fmt.Fprintf(out, "Estimate:  %s\n", format.Seconds(status.EstimateSeconds(seconds, mf, df)))
			return nil
		},
	}
	cmd.Flags().Float64Var(&seconds, "seconds", 0, "Audio duration in seconds (instead of a file)")
	cmd.Flags().BoolVar(&all, "all", false, "Show the estimate for every model size")
	return cmd
}
