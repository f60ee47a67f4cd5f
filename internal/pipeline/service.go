// Package pipeline orchestrates model loading and transcription on top of the
// job runner and the status tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aymanbagabas/go-osc52/v2"

	"whisperdesk/internal/audio"
	"whisperdesk/internal/engine"
	"whisperdesk/internal/jobs"
	"whisperdesk/internal/logger"
	"whisperdesk/internal/model"
	"whisperdesk/internal/status"
	"whisperdesk/internal/util"
)

var (
	// ErrBusy is returned while another operation holds the tracker.
	ErrBusy = errors.New("an operation is already in progress")
	// ErrModelNotReady is returned when transcribing before a model is loaded.
	ErrModelNotReady = errors.New("model is not loaded")
	// ErrNoInput is returned when no audio file was given.
	ErrNoInput = errors.New("no audio file selected")
	// ErrNoTranscript is returned when saving with nothing transcribed.
	ErrNoTranscript = errors.New("no transcript to save")
	// ErrSelectionChanged ends a delayed load whose model was deselected.
	ErrSelectionChanged = errors.New("model selection changed")
)

// Default display-hold and warning delays.
const (
	DefaultHoldLoaded           = 2 * time.Second
	DefaultHoldCompleted        = 5 * time.Second
	DefaultHoldNotice           = 2 * time.Second
	DefaultLargeModelDelay      = 3 * time.Second
	DefaultLoadSecondsPerFactor = 1.5
)

// Engine loads models and runs inference.
type Engine interface {
	LoadModel(ctx context.Context, size string) (*engine.Handle, error)
	Infer(ctx context.Context, h *engine.Handle, samples audio.Samples) (string, error)
	Device() engine.Device
}

// AudioLoader decodes an input file into samples.
type AudioLoader interface {
	Load(ctx context.Context, path string) (audio.Samples, error)
}

// Service owns the load/transcribe state machine. All methods are safe for
// concurrent use and never block on the work itself.
type Service struct {
	ctx     context.Context
	engine  Engine
	loader  AudioLoader
	runner  *jobs.Runner
	tracker *status.Tracker
	log     logger.Logger
	outDir  string

	holdLoaded           time.Duration
	holdCompleted        time.Duration
	holdNotice           time.Duration
	largeDelay           time.Duration
	loadSecondsPerFactor float64
	afterFunc            func(time.Duration, func())

	mu         sync.Mutex
	factors    status.ModelFactors
	size       model.ModelSize
	handle     *engine.Handle
	transcript model.Transcript

	// bumped on every operation start and every scheduled reset
	gen    atomic.Uint64
	// bumped on every model selection
	selection atomic.Uint64
	closed    atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithContext sets the context passed to collaborators (process lifetime).
func WithContext(ctx context.Context) Option {
	return func(s *Service) {
		s.ctx = ctx
	}
}

// WithEngine sets the model engine.
func WithEngine(e Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithLoader sets the audio loader.
func WithLoader(l AudioLoader) Option {
	return func(s *Service) {
		s.loader = l
	}
}

// WithRunner injects a job runner (shared with the UI for events).
func WithRunner(r *jobs.Runner) Option {
	return func(s *Service) {
		s.runner = r
	}
}

// WithTracker injects the status tracker observed by the UI.
func WithTracker(t *status.Tracker) Option {
	return func(s *Service) {
		s.tracker = t
	}
}

// WithFactors sets the model factor table.
func WithFactors(f status.ModelFactors) Option {
	return func(s *Service) {
		s.factors = f.Clone()
	}
}

// WithModelSize sets the initially selected model size.
func WithModelSize(size model.ModelSize) Option {
	return func(s *Service) {
		s.size = size
	}
}

// WithOutDir sets where transcripts are saved by default.
func WithOutDir(dir string) Option {
	return func(s *Service) {
		s.outDir = dir
	}
}

// WithHolds sets the display-hold delays after load, after transcription
// and after short notices (save, clear). Zero disables that reset.
func WithHolds(loaded, completed, notice time.Duration) Option {
	return func(s *Service) {
		s.holdLoaded = loaded
		s.holdCompleted = completed
		s.holdNotice = notice
	}
}

// WithLargeModelDelay sets how long the large-model warning is shown before
// loading starts.
func WithLargeModelDelay(d time.Duration) Option {
	return func(s *Service) {
		s.largeDelay = d
	}
}

// WithLoadSecondsPerFactor seeds the load estimate: factor * seconds.
func WithLoadSecondsPerFactor(sec float64) Option {
	return func(s *Service) {
		s.loadSecondsPerFactor = sec
	}
}

// WithAfterFunc replaces time.AfterFunc for delayed resets (tests).
func WithAfterFunc(fn func(time.Duration, func())) Option {
	return func(s *Service) {
		s.afterFunc = fn
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// NewService constructs a Service. Missing runner, tracker and factor table
// get defaults; engine and loader are required before use.
func NewService(opts ...Option) *Service {
	s := &Service{
		ctx:                  context.Background(),
		holdLoaded:           DefaultHoldLoaded,
		holdCompleted:        DefaultHoldCompleted,
		holdNotice:           DefaultHoldNotice,
		largeDelay:           DefaultLargeModelDelay,
		loadSecondsPerFactor: DefaultLoadSecondsPerFactor,
		size:                 model.SizeSmall,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.runner == nil {
		s.runner = jobs.NewRunner(jobs.WithLogger(s.log))
	}
	if s.tracker == nil {
		s.tracker = status.NewTracker(status.WithLogger(s.log))
	}
	if s.factors == nil {
		s.factors = status.DefaultModelFactors()
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	s.tracker.UpdateStatus(MsgReady)
	return s
}

// Tracker returns the status tracker.
func (s *Service) Tracker() *status.Tracker { return s.tracker }

// Runner returns the job runner.
func (s *Service) Runner() *jobs.Runner { return s.runner }

// Device reports the engine device.
func (s *Service) Device() engine.Device {
	if s.engine == nil {
		return engine.Device{}
	}
	return s.engine.Device()
}

// ModelSize returns the selected model size.
func (s *Service) ModelSize() model.ModelSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// LoadedModel returns the size of the loaded model, if any.
func (s *Service) LoadedModel() (model.ModelSize, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return "", false
	}
	return model.ModelSize(s.handle.Size), true
}

// Factors returns a copy of the model factor table.
func (s *Service) Factors() status.ModelFactors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.factors.Clone()
}

// SetFactors replaces the model factor table used by later estimates.
func (s *Service) SetFactors(f status.ModelFactors) {
	s.mu.Lock()
	s.factors = f.Clone()
	s.mu.Unlock()
	s.log.Info(s.ctx, "model factors updated: %v", f)
}

// Close disables pending display-hold resets.
func (s *Service) Close() {
	s.closed.Store(true)
}

// LoadModel loads the model for size in the background. The returned channel
// receives the outcome after status has been finalized; a successful
// outcome carries a model.LoadResult.
func (s *Service) LoadModel(size model.ModelSize) (<-chan jobs.Outcome, error) {
	if s.engine == nil {
		return nil, errors.New("no engine configured")
	}
	if !s.tracker.Begin() {
		return nil, ErrBusy
	}
	gen := s.gen.Add(1)

	s.tracker.UpdateStatus(MsgLoadingModel)
	s.tracker.UpdateProgress(0.2, MsgLoadingModel)
	est := s.Factors().Factor(string(size)) * s.loadSecondsPerFactor
	s.tracker.StartProgressUpdates(0.2, 0.9, est, status.RemainingText)

	done := make(chan jobs.Outcome, 1)
	ok := s.runner.Run(jobs.CategoryLoad, func() (any, error) {
		return s.engine.LoadModel(s.ctx, string(size))
	}, func(o jobs.Outcome) {
		done <- s.finishLoad(size, gen, o)
	})
	if !ok {
		s.tracker.StopTimer()
		s.tracker.UpdateProgress(0, "")
		return nil, jobs.ErrJobAlreadyRunning
	}
	s.log.Info(s.ctx, "loading model %s (estimate %.1fs)", size, est)
	return done, nil
}

func (s *Service) finishLoad(size model.ModelSize, gen uint64, o jobs.Outcome) jobs.Outcome {
	elapsed := s.tracker.StopTimer()
	if !o.Success {
		s.tracker.UpdateStatus(fmt.Sprintf(msgErrorGeneric, o.Err))
		s.tracker.UpdateProgress(0, "")
		s.log.Error(s.ctx, "load model %s: %s", size, o.Err)
		s.scheduleReset(gen, s.holdCompleted)
		return o
	}

	h, _ := o.Result.(*engine.Handle)
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()

	device := s.engine.Device().Label()
	s.tracker.UpdateStatus(modelLoadedText(size, device))
	s.tracker.UpdateProgress(1.0, loadedInText(elapsed))
	s.scheduleReset(gen, s.holdLoaded)

	o.Result = model.LoadResult{
		Size:    size,
		Device:  device,
		Elapsed: time.Duration(elapsed * float64(time.Second)),
	}
	return o
}

// SetModelSize selects size and reloads. Loading the large model on
// general-purpose hardware first shows a warning and delays the load.
func (s *Service) SetModelSize(size model.ModelSize) (<-chan jobs.Outcome, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("unknown model size %q", size)
	}
	if s.tracker.Processing() {
		return nil, ErrBusy
	}
	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
	sel := s.selection.Add(1)

	if size != model.SizeLarge || s.Device().Accelerated || s.largeDelay <= 0 {
		return s.LoadModel(size)
	}

	s.tracker.UpdateStatus(MsgLargeWarning)
	s.gen.Add(1)
	done := make(chan jobs.Outcome, 1)
	s.afterFunc(s.largeDelay, func() {
		if s.closed.Load() {
			done <- jobs.Outcome{Category: jobs.CategoryLoad, Err: "service closed"}
			return
		}
		if s.selection.Load() != sel {
			done <- jobs.Outcome{Category: jobs.CategoryLoad, Err: ErrSelectionChanged.Error()}
			return
		}
		ch, err := s.LoadModel(s.ModelSize())
		if err != nil {
			done <- jobs.Outcome{Category: jobs.CategoryLoad, Err: err.Error()}
			return
		}
		done <- <-ch
	})
	return done, nil
}

// Transcribe decodes and transcribes path in the background. A successful
// outcome carries a model.Transcript.
func (s *Service) Transcribe(path string) (<-chan jobs.Outcome, error) {
	if path == "" {
		s.tracker.UpdateStatus(MsgSelectFile)
		return nil, ErrNoInput
	}
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil || s.runner.Running(jobs.CategoryLoad) {
		s.tracker.UpdateStatus(MsgWaitModel)
		return nil, ErrModelNotReady
	}
	if s.loader == nil {
		return nil, errors.New("no audio loader configured")
	}
	if !s.tracker.Begin() {
		return nil, ErrBusy
	}
	gen := s.gen.Add(1)

	s.tracker.UpdateProgress(0.1, MsgProcessing)
	s.tracker.UpdateStatus(MsgProcessing)

	done := make(chan jobs.Outcome, 1)
	ok := s.runner.Run(jobs.CategoryTranscribe, func() (any, error) {
		return s.transcribe(path, h)
	}, func(o jobs.Outcome) {
		done <- s.finishTranscribe(gen, o)
	})
	if !ok {
		s.tracker.StopTimer()
		s.tracker.UpdateProgress(0, "")
		return nil, jobs.ErrJobAlreadyRunning
	}
	return done, nil
}

// transcribe runs on the worker goroutine.
func (s *Service) transcribe(path string, h *engine.Handle) (any, error) {
	s.tracker.UpdateStatus(MsgLoadingAudio)
	samples, err := s.loader.Load(s.ctx, path)
	if err != nil {
		return nil, err
	}

	s.tracker.UpdateProgress(0.3, MsgLoadingAudio)
	s.tracker.UpdateStatus(MsgTranscribing)

	size := model.ModelSize(h.Size)
	secs := audio.Duration(samples)
	est := status.EstimateSeconds(secs, s.Factors().Factor(h.Size), status.DeviceFactor(s.engine.Device().Accelerated))
	s.log.Info(s.ctx, "transcribing %s: %.1fs audio, model %s, estimate %.1fs", filepath.Base(path), secs, size, est)
	s.tracker.StartProgressUpdates(0.3, 0.9, est, status.RemainingText)

	text, err := s.engine.Infer(s.ctx, h, samples)
	if err != nil {
		return nil, err
	}
	return model.Transcript{
		AudioPath:    path,
		Text:         text,
		AudioSeconds: secs,
		EstSeconds:   est,
		Size:         size,
	}, nil
}

func (s *Service) finishTranscribe(gen uint64, o jobs.Outcome) jobs.Outcome {
	total := s.tracker.StopTimer()
	if !o.Success {
		s.tracker.UpdateStatus(fmt.Sprintf(msgErrorAudio, o.Err))
		s.tracker.UpdateProgress(0, "")
		s.log.Error(s.ctx, "transcription failed: %s", o.Err)
		s.scheduleReset(gen, s.holdCompleted)
		return o
	}

	tr, _ := o.Result.(model.Transcript)
	tr.Elapsed = time.Duration(total * float64(time.Second))
	s.mu.Lock()
	s.transcript = tr
	s.mu.Unlock()

	msg := completedText(total)
	s.tracker.UpdateProgress(1.0, msg)
	s.tracker.UpdateStatus(msg)
	s.scheduleReset(gen, s.holdCompleted)

	o.Result = tr
	return o
}

// Transcript returns the latest transcript (zero when none or cleared).
func (s *Service) Transcript() model.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// SaveTranscript writes the transcript to path, or next to the audio (or in
// the configured output dir) when path is empty. It returns the written path.
func (s *Service) SaveTranscript(path string) (string, error) {
	tr := s.Transcript()
	if tr.Text == "" {
		s.tracker.UpdateStatus(MsgNoTranscript)
		return "", ErrNoTranscript
	}
	if path == "" {
		path = util.TranscriptPath(tr.AudioPath, s.outDir)
	}
	written, err := util.WriteTranscriptFile(path, tr.Text)
	if err != nil {
		s.tracker.UpdateStatus(fmt.Sprintf(msgErrorSaving, err))
		s.scheduleReset(s.gen.Add(1), s.holdNotice)
		return "", fmt.Errorf("save transcript: %w", err)
	}
	s.tracker.UpdateStatus(fmt.Sprintf(msgSaved, filepath.Base(written)))
	s.scheduleReset(s.gen.Add(1), s.holdNotice)
	s.log.Info(s.ctx, "transcript saved to %s", written)
	return written, nil
}

// CopyTranscript puts the transcript on the terminal clipboard by writing an
// OSC 52 sequence to w, wrapped for tmux when running inside it.
func (s *Service) CopyTranscript(w io.Writer) error {
	tr := s.Transcript()
	if tr.Text == "" {
		s.tracker.UpdateStatus(MsgNothingCopy)
		s.scheduleReset(s.gen.Add(1), s.holdNotice)
		return ErrNoTranscript
	}
	seq := osc52.New(tr.Text)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	}
	if _, err := seq.WriteTo(w); err != nil {
		s.tracker.UpdateStatus(fmt.Sprintf(msgErrorCopying, err))
		s.scheduleReset(s.gen.Add(1), s.holdNotice)
		return fmt.Errorf("copy transcript: %w", err)
	}
	s.tracker.UpdateStatus(MsgCopied)
	s.scheduleReset(s.gen.Add(1), s.holdNotice)
	return nil
}

// ClearTranscript forgets the current transcript.
func (s *Service) ClearTranscript() {
	s.mu.Lock()
	s.transcript = model.Transcript{}
	s.mu.Unlock()
	s.tracker.UpdateStatus(MsgCleared)
	s.scheduleReset(s.gen.Add(1), s.holdNotice)
}

// scheduleReset returns the tracker to Ready after hold unless another
// operation or reset was scheduled meanwhile.
// A non-positive hold keeps the final state.
func (s *Service) scheduleReset(gen uint64, hold time.Duration) {
	if hold <= 0 {
		return
	}
	s.afterFunc(hold, func() {
		if s.closed.Load() || s.gen.Load() != gen {
			return
		}
		s.tracker.ResetIfIdle(MsgReady)
	})
}
