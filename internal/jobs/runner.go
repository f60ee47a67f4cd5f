// Package jobs runs single-flight background work per category and reports
// exactly one outcome per accepted run.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"whisperdesk/internal/logger"
)

// ErrJobAlreadyRunning is returned when a category already has work in flight.
var ErrJobAlreadyRunning = errors.New("job already running")

// Category names a kind of job; at most one job per category runs at a time.
type Category string

const (
	CategoryLoad       Category = "load"
	CategoryTranscribe Category = "transcribe"
)

// Work is the unit executed off the caller's goroutine.
type Work func() (any, error)

// Outcome is delivered once per accepted run.
type Outcome struct {
	JobID      string
	Category   Category
	Success    bool
	Result     any
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time the work took.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Runner enforces the per-category in-flight guard.
type Runner struct {
	mu       sync.Mutex
	inFlight map[Category]string
	wg       sync.WaitGroup

	events *EventBus
	log    logger.Logger
	now    func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEventBus publishes lifecycle events to bus.
func WithEventBus(bus *EventBus) RunnerOption {
	return func(r *Runner) { r.events = bus }
}

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates an idle runner. Without WithEventBus it publishes to a
// bus of DefaultMaxEvents.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		inFlight: make(map[Category]string),
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.events == nil {
		r.events = NewEventBus(DefaultMaxEvents)
	}
	return r
}

// Events returns the bus lifecycle events are published to.
func (r *Runner) Events() *EventBus {
	return r.events
}

// Run starts work on a new goroutine unless category is busy, in which case
// it returns false without starting anything. onComplete is called exactly
// once, after the category guard has been released, so it may start another
// job of the same category.
func (r *Runner) Run(category Category, work Work, onComplete func(Outcome)) bool {
	id := uuid.NewString()

	r.mu.Lock()
	if _, busy := r.inFlight[category]; busy {
		r.mu.Unlock()
		return false
	}
	r.inFlight[category] = id
	r.wg.Add(1)
	r.mu.Unlock()

	go r.execute(id, category, work, onComplete)
	return true
}

// Go is Run with the outcome delivered on a buffered channel.
func (r *Runner) Go(category Category, work Work) (<-chan Outcome, bool) {
	ch := make(chan Outcome, 1)
	ok := r.Run(category, work, func(o Outcome) { ch <- o })
	if !ok {
		return nil, false
	}
	return ch, true
}

// Running reports whether category has work in flight.
func (r *Runner) Running(category Category) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inFlight[category]
	return busy
}

// Wait blocks until every accepted run has delivered its outcome.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(id string, category Category, work Work, onComplete func(Outcome)) {
	defer r.wg.Done()

	ctx := context.Background()
	out := Outcome{JobID: id, Category: category, StartedAt: r.now()}
	r.publish(Event{JobID: id, Category: category, Type: EventStarted})
	r.log.Debug(ctx, "job %s (%s) started", id, category)

	result, err := safeCall(work)
	out.FinishedAt = r.now()
	if err != nil {
		out.Err = err.Error()
		r.publish(Event{JobID: id, Category: category, Type: EventFailed, Message: out.Err})
		r.log.Warn(ctx, "job %s (%s) failed: %s", id, category, out.Err)
	} else {
		out.Success = true
		out.Result = result
		r.publish(Event{JobID: id, Category: category, Type: EventSucceeded})
		r.log.Debug(ctx, "job %s (%s) finished in %s", id, category, out.Duration())
	}

	r.mu.Lock()
	delete(r.inFlight, category)
	r.mu.Unlock()

	if onComplete == nil {
		return
	}
	func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error(ctx, "job %s completion handler panicked: %v", id, p)
			}
		}()
		onComplete(out)
	}()
}

func (r *Runner) publish(e Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}

// safeCall runs work, converting a panic into an error.
func safeCall(work Work) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if work == nil {
		return nil, errors.New("no work")
	}
	return work()
}
