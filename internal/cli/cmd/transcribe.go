package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"whisperdesk/internal/jobs"
	"whisperdesk/internal/model"
	"whisperdesk/internal/ui"
)

type transcribeOptions struct {
	Output string // save path; empty uses the output dir
	NoSave bool
	Print  bool
}

func newTranscribeCmd() *cobra.Command {
	var opts transcribeOptions
	cmd := &cobra.Command{
		Use:           "transcribe <audio>",
		Short:         "Transcribe one audio file with plain progress output",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "O", "", "Transcript path (.txt added when no extension)")
	cmd.Flags().BoolVar(&opts.NoSave, "no-save", false, "Do not write a transcript file")
	cmd.Flags().BoolVar(&opts.Print, "print", true, "Print the transcript to stdout")
	return cmd
}

func runTranscribe(cmd *cobra.Command, path string, opts transcribeOptions) error {
	if _, err := os.Stat(path); err != nil {
		return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("audio file: %w", err)}
	}

	ctx := cmd.Context()
	s := settingsFrom(cmd)
	a, err := newApp(ctx, s, appOptions{Warn: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	states, unsubscribe := a.svc.Tracker().Subscribe()
	stop := make(chan struct{})
	followed := make(chan struct{})
	go func() {
		ui.NewPlain(cmd.ErrOrStderr()).Follow(ctx, states, stop)
		close(followed)
	}()
	finish := func() {
		close(stop)
		<-followed
		unsubscribe()
	}

	ch, err := a.svc.LoadModel(model.ModelSize(s.Model))
	if err != nil {
		finish()
		return &ExitError{Code: ExitModelError, Err: err}
	}
	if o, ok := await(ctx, ch); !ok || !o.Success {
		finish()
		return &ExitError{Code: ExitModelError, Err: outcomeErr(ctx, o, "load model")}
	}

	ch, err = a.svc.Transcribe(path)
	if err != nil {
		finish()
		return &ExitError{Code: ExitTranscribeError, Err: err}
	}
	o, ok := await(ctx, ch)
	finish()
	if !ok || !o.Success {
		return &ExitError{Code: ExitTranscribeError, Err: outcomeErr(ctx, o, "transcribe")}
	}

	tr, _ := o.Result.(model.Transcript)
	if !opts.NoSave {
		written, err := a.svc.SaveTranscript(opts.Output)
		if err != nil {
			return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("save transcript: %w", err)}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved: %s\n", written)
	}
	if opts.Print {
		fmt.Fprintln(cmd.OutOrStdout(), tr.Text)
	}
	return nil
}

// await waits for an outcome or cancellation. Work already running is not
// interrupted; its outcome is abandoned.
func await(ctx context.Context, ch <-chan jobs.Outcome) (jobs.Outcome, bool) {
	select {
	case o := <-ch:
		return o, true
	case <-ctx.Done():
		return jobs.Outcome{}, false
	}
}

func outcomeErr(ctx context.Context, o jobs.Outcome, what string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%s: %s", what, o.Err)
}
