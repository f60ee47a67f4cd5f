// Package audio turns arbitrary media files into 16 kHz mono samples using
// ffmpeg.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"whisperdesk/internal/logger"
	"whisperdesk/internal/util"
)

// SampleRate is the rate every loaded clip is resampled to.
const SampleRate = 16000

// ErrDecode wraps every failure to turn an input into samples.
var ErrDecode = errors.New("audio decode failed")

// Samples are mono PCM values in [-1, 1).
type Samples []float32

// Duration returns the length of samples in seconds.
func Duration(samples Samples) float64 {
	return float64(len(samples)) / SampleRate
}

// Loader decodes audio files through ffmpeg.
type Loader struct {
	FFmpegPath string
	Runner     util.CmdRunner
	Log        logger.Logger
	KeepTemp   bool
}

// NewLoader returns a Loader using the default runner.
func NewLoader(ffmpegPath string, log logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		FFmpegPath: ffmpegPath,
		Runner:     util.NewDefaultRunner(),
		Log:        log,
	}
}

// Load decodes path into samples.
func (l *Loader) Load(ctx context.Context, path string) (Samples, error) {
	if l.FFmpegPath == "" {
		return nil, errors.New("ffmpeg path is required")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrDecode, path)
	}

	workdir, err := util.MakeTempWorkdir("decode")
	if err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	if !l.KeepTemp {
		defer os.RemoveAll(workdir)
	}
	out := filepath.Join(workdir, "input.wav")

	log := l.logger()
	var prog DecodeProgress
	runner := l.Runner
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	log.Debug(ctx, "+ %s", util.CommandLine(l.FFmpegPath, BuildDecodeArgs(path, out, true)))
	_, runErr := runner.Run(ctx, util.CmdSpec{
		Path: l.FFmpegPath,
		Args: BuildDecodeArgs(path, out, true),
		StdoutLine: func(line string) {
			if prog.UpdateFromLine(line) {
				log.Debug(ctx, "decoded %.1fs (speed %s)", prog.DecodedSeconds(), prog.Speed)
			}
		},
	})
	if runErr != nil {
		_ = util.RemoveIfExists(out)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrDecode, runErr)
	}

	f, err := os.Open(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	samples, rate, err := DecodeWAV(f)
	if err != nil {
		return nil, err
	}
	if rate != SampleRate {
		return nil, fmt.Errorf("%w: unexpected sample rate %d", ErrDecode, rate)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no audio in %s", ErrDecode, filepath.Base(path))
	}
	log.Info(ctx, "loaded %s: %.1fs of audio", filepath.Base(path), Duration(samples))
	return samples, nil
}

func (l *Loader) logger() logger.Logger {
	if l.Log == nil {
		return logger.Nop()
	}
	return l.Log
}
