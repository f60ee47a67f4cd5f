package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"whisperdesk/internal/config"
)

const (
	ExitOK              = 0
	ExitCLIError        = 1
	ExitMissingDep      = 2
	ExitModelError      = 3
	ExitTranscribeError = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

type ctxKey string

const settingsKey ctxKey = "settings"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "whisperdesk [audio]",
		Short: "Local speech-to-text with live progress",
		Long: "whisperdesk transcribes audio files on your machine with whisper.cpp. " +
			"It shows a live status line, a progress bar and a remaining-time estimate while the model loads and runs.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: loadSettings,
		RunE: func(cmd *cobra.Command, args []string) error {
			if isTerminal() {
				return runTUI(cmd, args)
			}
			if len(args) == 0 {
				return &ExitError{Code: ExitCLIError, Err: errors.New("no audio file given and stdout is not a terminal")}
			}
			return runTranscribe(cmd, args[0], transcribeOptions{Print: true})
		},
	}

	bindPersistentFlags(root.PersistentFlags())

	root.AddCommand(newTranscribeCmd())
	root.AddCommand(newTuiCmd())
	root.AddCommand(newEstimateCmd())
	root.AddCommand(newModelsCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

func bindPersistentFlags(fs *pflag.FlagSet) {
	fs.StringP("model", "m", "small", "Model size: tiny, base, small, medium, large")
	fs.StringP("language", "l", "", "Spoken language code (empty lets whisper detect)")
	fs.String("device", "auto", "Inference device: auto, cpu, gpu")
	fs.String("models-dir", "", "Directory holding ggml model files")
	fs.String("model-path", "", "Explicit model file; overrides --models-dir lookup")
	fs.StringP("out-dir", "o", "", "Directory for saved transcripts")
	fs.String("whisper-binary", "", "Path to the whisper.cpp CLI")
	fs.String("ffmpeg-binary", "", "Path to ffmpeg")
	fs.Int("threads", 0, "Inference threads (0 lets whisper decide)")
	fs.BoolP("verbose", "v", false, "Log subprocess commands and output")
	fs.Bool("keep-temp", false, "Keep intermediate WAV files")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
}

// loadSettings initializes config once per invocation and stores the
// effective settings on the command context.
func loadSettings(cmd *cobra.Command, _ []string) error {
	if err := config.Init(cmd.Root()); err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	s, err := config.Load()
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	if s.Verbose && s.LogLevel == "info" {
		s.LogLevel = "debug"
	}
	cmd.SetContext(context.WithValue(cmd.Context(), settingsKey, s))
	return nil
}

func settingsFrom(cmd *cobra.Command) config.Settings {
	if s, ok := cmd.Context().Value(settingsKey).(config.Settings); ok {
		return s
	}
	var s config.Settings
	_ = s.Validate()
	return s
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	return root.ExecuteContext(ctx)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
