package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"whisperdesk/internal/audio"
	"whisperdesk/internal/engine"
	"whisperdesk/internal/jobs"
	"whisperdesk/internal/model"
	"whisperdesk/internal/status"
)

type fakeEngine struct {
	mu        sync.Mutex
	device    engine.Device
	loadErr   error
	inferText string
	inferErr  error
	inferGate chan struct{}
	loads     []string
}

func (f *fakeEngine) LoadModel(ctx context.Context, size string) (*engine.Handle, error) {
	f.mu.Lock()
	f.loads = append(f.loads, size)
	f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &engine.Handle{Size: size, Path: "/models/ggml-" + size + ".bin"}, nil
}

func (f *fakeEngine) Infer(ctx context.Context, h *engine.Handle, samples audio.Samples) (string, error) {
	if f.inferGate != nil {
		<-f.inferGate
	}
	if f.inferErr != nil {
		return "", f.inferErr
	}
	return f.inferText, nil
}

func (f *fakeEngine) Device() engine.Device { return f.device }

func (f *fakeEngine) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

type fakeLoader struct {
	samples audio.Samples
	err     error
}

func (f *fakeLoader) Load(ctx context.Context, path string) (audio.Samples, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.samples, nil
}

// manualTimers records delayed callbacks until the test fires them.
type manualTimers struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (m *manualTimers) after(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.pending = append(m.pending, f)
}

func (m *manualTimers) fire() {
	m.mu.Lock()
	fs := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, f := range fs {
		f()
	}
}

func (m *manualTimers) scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

func newTestService(t *testing.T, eng *fakeEngine, ld *fakeLoader, opts ...Option) (*Service, *manualTimers) {
	t.Helper()
	tm := &manualTimers{}
	base := []Option{
		WithEngine(eng),
		WithLoader(ld),
		WithTracker(status.NewTracker(status.WithTickInterval(time.Millisecond))),
		WithAfterFunc(tm.after),
	}
	s := NewService(append(base, opts...)...)
	t.Cleanup(func() {
		s.Close()
		s.Runner().Wait()
	})
	return s, tm
}

func wait(t *testing.T, ch <-chan jobs.Outcome) jobs.Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return jobs.Outcome{}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func mustLoad(t *testing.T, s *Service, size model.ModelSize) {
	t.Helper()
	ch, err := s.LoadModel(size)
	if err != nil {
		t.Fatalf("LoadModel(%s) error = %v", size, err)
	}
	if o := wait(t, ch); !o.Success {
		t.Fatalf("LoadModel(%s) failed: %s", size, o.Err)
	}
}

func oneSecond() audio.Samples { return make(audio.Samples, audio.SampleRate) }

// ---------- Tests ----------

func TestNewService_Defaults(t *testing.T) {
	s := NewService()
	if s.runner == nil || s.tracker == nil {
		t.Fatal("runner and tracker should default")
	}
	if got := s.Tracker().Snapshot().Message; got != MsgReady {
		t.Errorf("initial status = %q, want %q", got, MsgReady)
	}
	if s.ModelSize() != model.SizeSmall {
		t.Errorf("default size = %s", s.ModelSize())
	}
	if s.Factors().Factor("large") != 8 {
		t.Errorf("default factors not applied")
	}
	if s.holdLoaded != DefaultHoldLoaded || s.holdCompleted != DefaultHoldCompleted {
		t.Errorf("holds = %v/%v", s.holdLoaded, s.holdCompleted)
	}
	if _, err := s.LoadModel(model.SizeSmall); err == nil {
		t.Error("LoadModel without engine should fail")
	}
}

func TestLoadModel_Success(t *testing.T) {
	s, tm := newTestService(t, &fakeEngine{}, &fakeLoader{})

	ch, err := s.LoadModel(model.SizeSmall)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	o := wait(t, ch)
	res, ok := o.Result.(model.LoadResult)
	if !o.Success || !ok {
		t.Fatalf("outcome = %+v", o)
	}
	if res.Size != model.SizeSmall || res.Device != "CPU" {
		t.Errorf("result = %+v", res)
	}

	st := s.Tracker().Snapshot()
	if st.Message != "Model 'small' loaded on CPU" {
		t.Errorf("status = %q", st.Message)
	}
	if st.Fraction != 1 || !strings.HasPrefix(st.TimeInfo, "Loaded in ") {
		t.Errorf("progress = %v %q", st.Fraction, st.TimeInfo)
	}
	if st.Processing {
		t.Error("still processing after load")
	}
	if size, ok := s.LoadedModel(); !ok || size != model.SizeSmall {
		t.Errorf("LoadedModel() = %s, %v", size, ok)
	}

	if d := tm.scheduled(); len(d) != 1 || d[0] != DefaultHoldLoaded {
		t.Fatalf("scheduled holds = %v, want [2s]", d)
	}
	tm.fire()
	st = s.Tracker().Snapshot()
	if st.Message != MsgReady || st.Fraction != 0 {
		t.Errorf("after hold: %q %v", st.Message, st.Fraction)
	}
}

func TestLoadModel_Failure(t *testing.T) {
	eng := &fakeEngine{loadErr: errors.New("model not found: ggml-small.bin")}
	s, _ := newTestService(t, eng, &fakeLoader{})

	ch, err := s.LoadModel(model.SizeSmall)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	o := wait(t, ch)
	if o.Success || o.Err != "model not found: ggml-small.bin" {
		t.Fatalf("outcome = %+v", o)
	}
	st := s.Tracker().Snapshot()
	if st.Message != "Error: model not found: ggml-small.bin" || st.Fraction != 0 || st.Processing {
		t.Errorf("state = %+v", st)
	}
	if _, ok := s.LoadedModel(); ok {
		t.Error("model reported loaded after failure")
	}
	if s.Runner().Running(jobs.CategoryLoad) {
		t.Error("load category still busy")
	}
}

func TestTranscribe_Preconditions(t *testing.T) {
	s, _ := newTestService(t, &fakeEngine{}, &fakeLoader{samples: oneSecond()})

	if _, err := s.Transcribe(""); !errors.Is(err, ErrNoInput) {
		t.Fatalf("error = %v, want ErrNoInput", err)
	}
	if got := s.Tracker().Snapshot().Message; got != MsgSelectFile {
		t.Errorf("status = %q", got)
	}

	if _, err := s.Transcribe("clip.wav"); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("error = %v, want ErrModelNotReady", err)
	}
	if got := s.Tracker().Snapshot().Message; got != MsgWaitModel {
		t.Errorf("status = %q", got)
	}
}

func TestTranscribe_Success(t *testing.T) {
	gate := make(chan struct{})
	eng := &fakeEngine{inferText: "hello world", inferGate: gate}
	s, tm := newTestService(t, eng, &fakeLoader{samples: oneSecond()})
	mustLoad(t, s, model.SizeSmall)

	ch, err := s.Transcribe("/audio/clip.wav")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	waitFor(t, func() bool { return s.Tracker().Snapshot().Message == MsgTranscribing })
	st := s.Tracker().Snapshot()
	if !st.Processing || st.Fraction < 0.3 || st.Fraction > 0.9 {
		t.Errorf("mid-run state = %+v", st)
	}
	if _, err := s.Transcribe("/audio/other.wav"); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping Transcribe error = %v, want ErrBusy", err)
	}
	if _, err := s.LoadModel(model.SizeBase); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping LoadModel error = %v, want ErrBusy", err)
	}
	if _, err := s.SetModelSize(model.SizeBase); !errors.Is(err, ErrBusy) {
		t.Errorf("SetModelSize while busy error = %v, want ErrBusy", err)
	}

	close(gate)
	o := wait(t, ch)
	tr, ok := o.Result.(model.Transcript)
	if !o.Success || !ok {
		t.Fatalf("outcome = %+v", o)
	}
	if tr.Text != "hello world" || tr.AudioSeconds != 1 || tr.Size != model.SizeSmall {
		t.Errorf("transcript = %+v", tr)
	}
	if s.Transcript().Text != "hello world" {
		t.Error("transcript not stored")
	}

	st = s.Tracker().Snapshot()
	if !strings.HasPrefix(st.Message, "Transcription completed! (") || st.Fraction != 1 || st.Processing {
		t.Errorf("final state = %+v", st)
	}
	time.Sleep(10 * time.Millisecond)
	if after := s.Tracker().Snapshot(); after.Fraction != 1 || after.Message != st.Message {
		t.Errorf("final state overwritten by a late tick: %+v", after)
	}

	d := tm.scheduled()
	if len(d) != 2 || d[1] != DefaultHoldCompleted {
		t.Errorf("scheduled holds = %v", d)
	}
}

func TestTranscribe_DecodeError(t *testing.T) {
	s, _ := newTestService(t, &fakeEngine{inferText: "ok"}, &fakeLoader{err: errors.New("decode error")})
	mustLoad(t, s, model.SizeTiny)

	ch, err := s.Transcribe("/audio/broken.mp3")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	o := wait(t, ch)
	if o.Success || o.Result != nil || o.Err != "decode error" {
		t.Fatalf("outcome = %+v", o)
	}
	st := s.Tracker().Snapshot()
	if st.Processing {
		t.Error("processing still set after failure")
	}
	if st.Message != "Error processing audio: decode error" || st.Fraction != 0 {
		t.Errorf("state = %+v", st)
	}

	// category and tracker are free again
	again, err := s.Transcribe("/audio/broken.mp3")
	if err != nil {
		t.Fatalf("second Transcribe() error = %v", err)
	}
	wait(t, again)
}

func TestTranscribe_InferFailure(t *testing.T) {
	eng := &fakeEngine{inferErr: errors.New("whisper.cpp failed: command failed (exit 3)")}
	s, _ := newTestService(t, eng, &fakeLoader{samples: oneSecond()})
	mustLoad(t, s, model.SizeSmall)

	ch, _ := s.Transcribe("a.wav")
	o := wait(t, ch)
	if o.Success {
		t.Fatal("expected failure")
	}
	if got := s.Tracker().Snapshot().Message; !strings.HasPrefix(got, "Error processing audio: whisper.cpp failed") {
		t.Errorf("status = %q", got)
	}
	if s.Transcript().Text != "" {
		t.Error("failed run stored a transcript")
	}
}

func TestTranscribe_EstimateUsesFactors(t *testing.T) {
	s, _ := newTestService(t, &fakeEngine{inferText: "x"}, &fakeLoader{samples: make(audio.Samples, 6*audio.SampleRate)})
	mustLoad(t, s, model.SizeSmall)
	s.SetFactors(status.ModelFactors{"small": 10})

	o := wait(t, mustTranscribe(t, s, "a.wav"))
	tr := o.Result.(model.Transcript)
	if tr.EstSeconds != 18 {
		t.Errorf("EstSeconds = %v, want 6s * 10 * 0.3 = 18", tr.EstSeconds)
	}

	s.SetFactors(status.ModelFactors{})
	o = wait(t, mustTranscribe(t, s, "a.wav"))
	if got := o.Result.(model.Transcript).EstSeconds; got < 1.79 || got > 1.81 {
		t.Errorf("EstSeconds with unknown size = %v, want 6 * 1.0 * 0.3", got)
	}
}

func mustTranscribe(t *testing.T, s *Service, path string) <-chan jobs.Outcome {
	t.Helper()
	ch, err := s.Transcribe(path)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	return ch
}

func TestSetModelSize(t *testing.T) {
	tests := []struct {
		name        string
		size        model.ModelSize
		device      engine.Device
		wantWarning bool
	}{
		{name: "small loads immediately", size: model.SizeSmall},
		{name: "large on cpu warns first", size: model.SizeLarge, wantWarning: true},
		{name: "large on gpu loads immediately", size: model.SizeLarge, device: engine.Device{Name: "cuda", Accelerated: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{device: tt.device}
			s, tm := newTestService(t, eng, &fakeLoader{})

			ch, err := s.SetModelSize(tt.size)
			if err != nil {
				t.Fatalf("SetModelSize() error = %v", err)
			}
			if s.ModelSize() != tt.size {
				t.Errorf("ModelSize() = %s", s.ModelSize())
			}
			if tt.wantWarning {
				if got := s.Tracker().Snapshot().Message; got != MsgLargeWarning {
					t.Errorf("status = %q, want warning", got)
				}
				if eng.loadCount() != 0 {
					t.Fatal("load started before warning delay")
				}
				if d := tm.scheduled(); len(d) != 1 || d[0] != DefaultLargeModelDelay {
					t.Fatalf("scheduled = %v", d)
				}
				tm.fire()
			}
			o := wait(t, ch)
			if !o.Success {
				t.Fatalf("outcome = %+v", o)
			}
			if loaded, _ := s.LoadedModel(); loaded != tt.size {
				t.Errorf("loaded = %s, want %s", loaded, tt.size)
			}
		})
	}

	s, _ := newTestService(t, &fakeEngine{}, &fakeLoader{})
	if _, err := s.SetModelSize("huge"); err == nil {
		t.Error("expected error for unknown size")
	}
}

func TestSaveAndClearTranscript(t *testing.T) {
	out := t.TempDir()
	s, _ := newTestService(t, &fakeEngine{inferText: "saved text"}, &fakeLoader{samples: oneSecond()}, WithOutDir(out))

	if _, err := s.SaveTranscript(""); !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("error = %v, want ErrNoTranscript", err)
	}
	if got := s.Tracker().Snapshot().Message; got != MsgNoTranscript {
		t.Errorf("status = %q", got)
	}

	mustLoad(t, s, model.SizeSmall)
	wait(t, mustTranscribe(t, s, "/audio/team call.mp3"))

	path, err := s.SaveTranscript("")
	if err != nil {
		t.Fatalf("SaveTranscript() error = %v", err)
	}
	if path != filepath.Join(out, "team_call.txt") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "saved text\n" {
		t.Errorf("file = %q, %v", data, err)
	}
	if got := s.Tracker().Snapshot().Message; got != "Saved: team_call.txt" {
		t.Errorf("status = %q", got)
	}

	explicit := filepath.Join(out, "custom")
	if path, err := s.SaveTranscript(explicit); err != nil || path != explicit+".txt" {
		t.Errorf("SaveTranscript(explicit) = %q, %v", path, err)
	}

	s.ClearTranscript()
	if s.Transcript().Text != "" {
		t.Error("transcript not cleared")
	}
	if got := s.Tracker().Snapshot().Message; got != MsgCleared {
		t.Errorf("status = %q", got)
	}
}

func TestHoldResetSkippedWhenSuperseded(t *testing.T) {
	gate := make(chan struct{})
	s, tm := newTestService(t, &fakeEngine{inferText: "x", inferGate: gate}, &fakeLoader{samples: oneSecond()})
	mustLoad(t, s, model.SizeSmall)

	ch := mustTranscribe(t, s, "a.wav")
	// the load hold expires mid-transcription
	tm.fire()
	if got := s.Tracker().Snapshot(); got.Message == MsgReady || !got.Processing {
		t.Fatalf("stale hold reset a running operation: %+v", got)
	}
	close(gate)
	wait(t, ch)

	s.ClearTranscript()
	tm.fire()
	if got := s.Tracker().Snapshot().Message; got != MsgReady {
		t.Errorf("status after notice hold = %q, want Ready", got)
	}
}

func TestSetModelSizeDuringLargeWarning(t *testing.T) {
	eng := &fakeEngine{}
	s, tm := newTestService(t, eng, &fakeLoader{})

	deferred, err := s.SetModelSize(model.SizeLarge)
	if err != nil {
		t.Fatalf("SetModelSize(large) error = %v", err)
	}
	ch, err := s.SetModelSize(model.SizeTiny)
	if err != nil {
		t.Fatalf("SetModelSize(tiny) error = %v", err)
	}
	if o := wait(t, ch); !o.Success {
		t.Fatalf("tiny load = %+v", o)
	}

	tm.fire()
	o := wait(t, deferred)
	if o.Success || o.Err != ErrSelectionChanged.Error() {
		t.Errorf("deferred outcome = %+v, want selection changed", o)
	}
	if got := s.ModelSize(); got != model.SizeTiny {
		t.Errorf("ModelSize() = %s, want tiny", got)
	}
	if loaded, _ := s.LoadedModel(); loaded != model.SizeTiny {
		t.Errorf("LoadedModel() = %s, want tiny", loaded)
	}
	eng.mu.Lock()
	loads := append([]string(nil), eng.loads...)
	eng.mu.Unlock()
	if len(loads) != 1 || loads[0] != "tiny" {
		t.Errorf("loads = %v, want [tiny]", loads)
	}
}

func TestCopyTranscript(t *testing.T) {
	t.Setenv("TMUX", "")
	s, tm := newTestService(t, &fakeEngine{inferText: "copy me"}, &fakeLoader{samples: oneSecond()})

	var buf bytes.Buffer
	if err := s.CopyTranscript(&buf); !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("error = %v, want ErrNoTranscript", err)
	}
	if got := s.Tracker().Snapshot().Message; got != MsgNothingCopy {
		t.Errorf("status = %q", got)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %q with nothing to copy", buf.String())
	}

	mustLoad(t, s, model.SizeSmall)
	wait(t, mustTranscribe(t, s, "/audio/clip.wav"))

	if err := s.CopyTranscript(&buf); err != nil {
		t.Fatalf("CopyTranscript() error = %v", err)
	}
	want := "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte("copy me")) + "\x07"
	if buf.String() != want {
		t.Errorf("clipboard sequence = %q, want %q", buf.String(), want)
	}
	if got := s.Tracker().Snapshot().Message; got != MsgCopied {
		t.Errorf("status = %q, want %q", got, MsgCopied)
	}

	d := tm.scheduled()
	if len(d) == 0 || d[len(d)-1] != DefaultHoldNotice {
		t.Errorf("scheduled = %v, want notice hold last", d)
	}
	tm.fire()
	if got := s.Tracker().Snapshot().Message; got != MsgReady {
		t.Errorf("status after hold = %q, want %q", got, MsgReady)
	}
}
