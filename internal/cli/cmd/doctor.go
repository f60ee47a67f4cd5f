package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisperdesk/internal/engine"
	"whisperdesk/internal/util/deps"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Diagnose external dependencies (ffmpeg, whisper.cpp) and hardware",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := settingsFrom(cmd)
			ff, ferr := deps.FindFFmpeg(s.FFmpegBinary)
			if ferr != nil {
				return &ExitError{Code: ExitMissingDep, Err: ferr}
			}
			wh, werr := deps.FindWhisper(s.WhisperBinary)
			if werr != nil {
				return &ExitError{Code: ExitMissingDep, Err: werr}
			}
			device, derr := engine.DetectDevice(s.Device)
			if derr != nil {
				return &ExitError{Code: ExitCLIError, Err: derr}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "FFmpeg:    %s\n", ff)
			fmt.Fprintf(out, "Whisper:   %s\n", wh)
			fmt.Fprintf(out, "Hardware:  %s\n", device)
			fmt.Fprintf(out, "Model:     %s: %s\n", s.Model, installed(s.ModelsDir, s.Model))
			return nil
		},
	}
}
