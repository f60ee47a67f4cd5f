// Package engine runs whisper.cpp models: loading (validation and warm-up)
// and inference through the whisper.cpp CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"whisperdesk/internal/audio"
	"whisperdesk/internal/logger"
	"whisperdesk/internal/util"
	"whisperdesk/internal/util/format"
)

// Config wires a Whisper engine.
type Config struct {
	WhisperPath string
	ModelsDir   string
	ModelPath   string // explicit model file; overrides ModelsDir lookup
	Language    string
	Threads     int
	Device      Device
	Runner      util.CmdRunner
	Log         logger.Logger
	KeepTemp    bool
}

// Whisper implements model loading and inference over whisper.cpp.
type Whisper struct {
	cfg Config
	now func() time.Time
}

// NewWhisper returns an engine with defaults applied.
func NewWhisper(cfg Config) *Whisper {
	if cfg.Runner == nil {
		cfg.Runner = util.NewDefaultRunner()
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	return &Whisper{cfg: cfg, now: time.Now}
}

// Device reports where inference runs.
func (w *Whisper) Device() Device {
	return w.cfg.Device
}

// LoadModel resolves, validates and warms the model for size.
func (w *Whisper) LoadModel(ctx context.Context, size string) (*Handle, error) {
	path, err := resolveModel(w.cfg.ModelsDir, w.cfg.ModelPath, size)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	if err := validateHeader(f); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	n, err := warm(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	h := &Handle{Size: size, Path: path, Bytes: n + 4, LoadedAt: w.now()}
	w.cfg.Log.Info(ctx, "model %s ready: %s (%s)", size, path, format.HumanizeBytes(h.Bytes))
	return h, nil
}

// Infer transcribes samples with the model behind h.
func (w *Whisper) Infer(ctx context.Context, h *Handle, samples audio.Samples) (string, error) {
	if h == nil {
		return "", errors.New("no model loaded")
	}
	if w.cfg.WhisperPath == "" {
		return "", errors.New("whisper path is required")
	}

	workdir, err := util.MakeTempWorkdir("infer")
	if err != nil {
		return "", fmt.Errorf("create workdir: %w", err)
	}
	if !w.cfg.KeepTemp {
		defer os.RemoveAll(workdir)
	}

	wavPath := filepath.Join(workdir, "input.wav")
	if err := writeWAV(wavPath, samples); err != nil {
		return "", err
	}
	base := filepath.Join(workdir, "transcript")
	args := BuildWhisperArgs(h.Path, wavPath, base, w.cfg.Language, w.cfg.Threads, w.cfg.Device.Accelerated)

	log := w.cfg.Log
	log.Debug(ctx, "+ %s", util.CommandLine(w.cfg.WhisperPath, args))
	_, runErr := w.cfg.Runner.Run(ctx, util.CmdSpec{
		Path:       w.cfg.WhisperPath,
		Args:       args,
		StderrLine: func(line string) { log.Debug(ctx, "whisper: %s", line) },
	})
	if runErr != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w", runErr)
	}

	content, err := os.ReadFile(base + ".txt")
	if err != nil {
		return "", fmt.Errorf("whisper.cpp produced no transcript: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

func writeWAV(path string, samples audio.Samples) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := audio.EncodeWAV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// BuildWhisperArgs builds whisper.cpp CLI args for plain-text output at
// outBase+".txt".
func BuildWhisperArgs(modelPath, wavPath, outBase, language string, threads int, accelerated bool) []string {
	args := []string{
		"-m", modelPath,
		"-f", wavPath,
		"-of", outBase,
		"-otxt",
		"-np",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	if !accelerated {
		args = append(args, "-ng")
	}
	return args
}

// normalizeLanguage lowercases the code; empty leaves whisper's default.
func normalizeLanguage(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
