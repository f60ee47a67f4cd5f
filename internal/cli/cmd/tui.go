package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"whisperdesk/internal/config"
	"whisperdesk/internal/ui"
)

func newTuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "tui [audio]",
		Short:         "Open the interactive transcription screen",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return &ExitError{Code: ExitCLIError, Err: errors.New("tui needs an interactive terminal; use 'whisperdesk transcribe' instead")}
			}
			return runTUI(cmd, args)
		},
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := settingsFrom(cmd)
	a, err := newApp(ctx, s, appOptions{Lenient: true, LogToFile: true, Warn: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	_ = config.Watch(
		func(next config.Settings) { a.svc.SetFactors(next.Factors()) },
		func(err error) { a.log.Warn(ctx, "%v", err) },
	)

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	if err := ui.Run(ctx, a.svc, ui.Options{AudioPath: path, AutoLoad: true}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	return nil
}
