package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"whisperdesk/internal/audio"
	"whisperdesk/internal/config"
	"whisperdesk/internal/dirs"
	"whisperdesk/internal/engine"
	"whisperdesk/internal/jobs"
	"whisperdesk/internal/logger"
	"whisperdesk/internal/model"
	"whisperdesk/internal/pipeline"
	"whisperdesk/internal/status"
	"whisperdesk/internal/util"
	"whisperdesk/internal/util/deps"
)

// app bundles the service with the resources the command must release.
type app struct {
	svc    *pipeline.Service
	log    logger.Logger
	closer io.Closer
}

func (a *app) Close() {
	a.svc.Close()
	a.svc.Runner().Wait()
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

type appOptions struct {
	// Lenient turns missing external tools into warnings; the error then
	// surfaces in the status line when the tool is needed.
	Lenient bool
	// LogToFile sends logs to the state-dir log file instead of stderr.
	LogToFile bool
	Warn      io.Writer
}

func newApp(ctx context.Context, s config.Settings, opts appOptions) (*app, error) {
	log, closer := newLogger(s, opts.LogToFile)
	a := &app{log: log, closer: closer}

	if d, err := dirs.TempBaseDir(); err == nil {
		util.TempBase = d
	}

	ffmpegPath, err := deps.FindFFmpeg(s.FFmpegBinary)
	if err != nil {
		if !opts.Lenient {
			a.closeLog()
			return nil, &ExitError{Code: ExitMissingDep, Err: err}
		}
		warn(opts.Warn, err)
		ffmpegPath = "ffmpeg"
	}
	whisperPath, err := deps.FindWhisper(s.WhisperBinary)
	if err != nil {
		if !opts.Lenient {
			a.closeLog()
			return nil, &ExitError{Code: ExitMissingDep, Err: err}
		}
		warn(opts.Warn, err)
		whisperPath = "whisper-cli"
	}

	device, err := engine.DetectDevice(s.Device)
	if err != nil {
		a.closeLog()
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}
	log.Debug(ctx, "using %s on %s", whisperPath, device)

	eng := engine.NewWhisper(engine.Config{
		WhisperPath: whisperPath,
		ModelsDir:   s.ModelsDir,
		ModelPath:   s.ModelPath,
		Language:    s.Language,
		Threads:     s.Threads,
		Device:      device,
		Log:         log,
		KeepTemp:    s.KeepTemp,
	})
	loader := audio.NewLoader(ffmpegPath, log)
	loader.KeepTemp = s.KeepTemp

	a.svc = pipeline.NewService(
		pipeline.WithContext(ctx),
		pipeline.WithEngine(eng),
		pipeline.WithLoader(loader),
		pipeline.WithRunner(jobs.NewRunner(
			jobs.WithEventBus(jobs.NewEventBus(jobs.DefaultMaxEvents)),
			jobs.WithLogger(log),
		)),
		pipeline.WithTracker(status.NewTracker(
			status.WithTickInterval(s.TickInterval),
			status.WithLogger(log),
		)),
		pipeline.WithFactors(s.Factors()),
		pipeline.WithModelSize(model.ModelSize(s.Model)),
		pipeline.WithOutDir(s.OutDir),
		pipeline.WithHolds(s.HoldLoaded, s.HoldCompleted, pipeline.DefaultHoldNotice),
		pipeline.WithLoadSecondsPerFactor(s.LoadSecondsPerFactor),
		pipeline.WithLogger(log),
	)
	return a, nil
}

func (a *app) closeLog() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func newLogger(s config.Settings, toFile bool) (logger.Logger, io.Closer) {
	if toFile {
		if path, err := dirs.LogFile(); err == nil {
			if l, c, err := logger.NewFile(path, s.LogLevel); err == nil {
				return l, c
			}
		}
		return logger.Nop(), nil
	}
	return logger.New(os.Stderr, s.LogLevel), nil
}

func warn(w io.Writer, err error) {
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "warning: %v\n", err)
}
