package progress

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name          string
		session       Session
		elapsed       time.Duration
		last          float64
		wantProgress  float64
		wantRemaining float64
		wantHasRemain bool
	}{
		{
			name:          "halfway through estimate",
			session:       Session{StartFraction: 0.3, EndFraction: 0.9, Estimated: 10 * time.Second},
			elapsed:       5 * time.Second,
			last:          0.3,
			wantProgress:  0.6,
			wantRemaining: 5,
			wantHasRemain: true,
		},
		{
			name:         "first tick has no remaining text",
			session:      Session{StartFraction: 0.3, EndFraction: 0.9, Estimated: 10 * time.Second},
			elapsed:      0,
			last:         0.3,
			wantProgress: 0.3,
		},
		{
			name:         "overrun clamps to end",
			session:      Session{StartFraction: 0.3, EndFraction: 0.9, Estimated: 10 * time.Second},
			elapsed:      25 * time.Second,
			last:         0.85,
			wantProgress: 0.9,
		},
		{
			name:         "exactly at estimate has no remaining text",
			session:      Session{StartFraction: 0, EndFraction: 1, Estimated: 4 * time.Second},
			elapsed:      4 * time.Second,
			last:         0.9,
			wantProgress: 1,
		},
		{
			name:         "fallback creep",
			session:      Session{StartFraction: 0.3, EndFraction: 0.9},
			elapsed:      time.Second,
			last:         0.5,
			wantProgress: 0.51,
		},
		{
			name:         "fallback creep clamps",
			session:      Session{StartFraction: 0.3, EndFraction: 0.9},
			elapsed:      time.Second,
			last:         0.895,
			wantProgress: 0.9,
		},
		{
			name:         "never regresses",
			session:      Session{StartFraction: 0.3, EndFraction: 0.9, Estimated: 10 * time.Second},
			elapsed:      time.Second,
			last:         0.5,
			wantProgress: 0.5,
			// still inside the window, so remaining is reported
			wantRemaining: 9,
			wantHasRemain: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpolate(tt.session, tt.elapsed, tt.last)
			if math.Abs(got.Progress-tt.wantProgress) > 1e-9 {
				t.Errorf("Progress = %v, want %v", got.Progress, tt.wantProgress)
			}
			if got.HasRemaining != tt.wantHasRemain {
				t.Errorf("HasRemaining = %v, want %v", got.HasRemaining, tt.wantHasRemain)
			}
			if tt.wantHasRemain && math.Abs(got.Remaining-tt.wantRemaining) > 1e-9 {
				t.Errorf("Remaining = %v, want %v", got.Remaining, tt.wantRemaining)
			}
		})
	}
}

type tickRecorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *tickRecorder) record(t Tick) {
	r.mu.Lock()
	r.ticks = append(r.ticks, t)
	r.mu.Unlock()
}

func (r *tickRecorder) snapshot() []Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tick(nil), r.ticks...)
}

func TestEstimatorTicksMonotonicAndBounded(t *testing.T) {
	rec := &tickRecorder{}
	e := Start(Session{
		StartFraction: 0.3,
		EndFraction:   0.9,
		Estimated:     100 * time.Millisecond,
		Interval:      5 * time.Millisecond,
	}, rec.record)

	if !e.Wait(2 * time.Second) {
		t.Fatal("estimator did not finish after reaching end fraction")
	}

	ticks := rec.snapshot()
	if len(ticks) < 2 {
		t.Fatalf("got %d ticks, want at least 2", len(ticks))
	}
	prev := 0.3
	for i, tk := range ticks {
		if tk.Progress < prev {
			t.Errorf("tick %d regressed: %v < %v", i, tk.Progress, prev)
		}
		if tk.Progress > 0.9 {
			t.Errorf("tick %d exceeded end: %v", i, tk.Progress)
		}
		prev = tk.Progress
	}
	if last := ticks[len(ticks)-1]; last.Progress != 0.9 {
		t.Errorf("last progress = %v, want 0.9", last.Progress)
	}
	if ticks[0].HasRemaining {
		t.Error("first tick should not report remaining time")
	}
}

func TestEstimatorFallbackCreepAdvances(t *testing.T) {
	rec := &tickRecorder{}
	e := Start(Session{
		StartFraction: 0.3,
		EndFraction:   0.35,
		Estimated:     0,
		Interval:      time.Millisecond,
	}, rec.record)

	if !e.Wait(2 * time.Second) {
		t.Fatal("fallback creep did not reach end fraction")
	}
	ticks := rec.snapshot()
	if len(ticks) < 2 {
		t.Fatalf("got %d ticks, want several", len(ticks))
	}
	if ticks[0].Progress <= 0.3 {
		t.Errorf("first creep tick = %v, want > 0.3", ticks[0].Progress)
	}
	for i, tk := range ticks {
		if tk.Progress > 0.35 {
			t.Errorf("tick %d exceeded end: %v", i, tk.Progress)
		}
		if tk.HasRemaining {
			t.Errorf("tick %d reported remaining during creep", i)
		}
	}
}

func TestEstimatorStop(t *testing.T) {
	rec := &tickRecorder{}
	e := Start(Session{
		StartFraction: 0,
		EndFraction:   1,
		Estimated:     time.Hour,
		Interval:      2 * time.Millisecond,
	}, rec.record)

	time.Sleep(20 * time.Millisecond)
	e.Stop()
	if !e.Wait(time.Second) {
		t.Fatal("estimator loop did not exit after Stop")
	}
	if e.Running() {
		t.Error("Running() = true after loop exit")
	}

	n := len(rec.snapshot())
	time.Sleep(20 * time.Millisecond)
	if got := len(rec.snapshot()); got != n {
		t.Errorf("ticks after exit: %d -> %d", n, got)
	}

	// repeated stops are harmless
	e.Stop()
}

func TestEstimatorStopFromTick(t *testing.T) {
	var e *Estimator
	var mu sync.Mutex
	calls := 0
	ready := make(chan struct{})
	e = Start(Session{EndFraction: 1, Estimated: time.Hour, Interval: time.Millisecond}, func(Tick) {
		<-ready
		mu.Lock()
		calls++
		mu.Unlock()
		e.Stop()
	})
	close(ready)

	if !e.Wait(time.Second) {
		t.Fatal("estimator did not exit when stopped from its own tick")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("tick calls = %d, want 1", calls)
	}
}

func TestEstimatorWithClock(t *testing.T) {
	base := time.Unix(0, 0)
	var mu sync.Mutex
	now := base
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	first := make(chan Tick, 1)
	e := Start(Session{StartFraction: 0.3, EndFraction: 0.9, Estimated: 10 * time.Second, Interval: time.Hour},
		func(tk Tick) {
			select {
			case first <- tk:
			default:
			}
		},
		WithClock(clock),
	)
	defer e.Stop()

	select {
	case tk := <-first:
		if tk.Progress != 0.3 || tk.Elapsed != 0 {
			t.Errorf("first tick = %+v, want progress 0.3 at elapsed 0", tk)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick delivered")
	}
}

func TestStartNormalizesSession(t *testing.T) {
	e := Start(Session{StartFraction: 0.5, EndFraction: 0.2}, nil)
	defer e.Stop()
	s := e.Session()
	if s.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", s.Interval, DefaultInterval)
	}
	if s.EndFraction != 0.5 {
		t.Errorf("EndFraction = %v, want 0.5", s.EndFraction)
	}
	if !e.Wait(time.Second) {
		t.Error("degenerate session should finish immediately")
	}
}
