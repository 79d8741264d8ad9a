package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/cjeanneret/PiSnap/internal/debug"
)

// ErrBusy is returned by Submit while a capture is in flight.
var ErrBusy = errors.New("capture already in progress")

// Capturer runs a single capture attempt. *Orchestrator implements it.
type Capturer interface {
	CaptureWithID(ctx context.Context, id string) Result
}

// Worker runs captures off the caller's goroutine, one at a time.
// Callers that find it busy are turned away instead of queueing.
type Worker struct {
	capturer Capturer

	mu       sync.Mutex
	busy     bool
	onStart  []func(id string)
	onResult []func(Result)
	inflight sync.WaitGroup
}

// NewWorker creates a Worker around c.
func NewWorker(c Capturer) *Worker {
	return &Worker{capturer: c}
}

// OnStart registers fn to run when a capture begins.
func (w *Worker) OnStart(fn func(id string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStart = append(w.onStart, fn)
}

// OnResult registers fn to run with every finished capture, whoever submitted it.
func (w *Worker) OnResult(fn func(Result)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResult = append(w.onResult, fn)
}

// Busy reports whether a capture is in flight.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Submit starts a capture. The returned channel receives exactly one Result
// and is then closed.
func (w *Worker) Submit(ctx context.Context) (<-chan Result, error) {
	_, ch, err := w.Start(ctx, "api")
	return ch, err
}

// Start is Submit that also returns the capture ID and records what
// triggered it. Cancelling ctx does not stop a started capture.
func (w *Worker) Start(ctx context.Context, source string) (string, <-chan Result, error) {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return "", nil, ErrBusy
	}
	w.busy = true
	w.inflight.Add(1)
	onStart := append([]func(string){}, w.onStart...)
	w.mu.Unlock()

	id := NewID()
	debug.Trigger(source, id)
	ch := make(chan Result, 1)
	capCtx := context.WithoutCancel(ctx)

	go func() {
		defer w.inflight.Done()
		for _, fn := range onStart {
			fn(id)
		}

		res := w.capturer.CaptureWithID(capCtx, id)

		w.mu.Lock()
		w.busy = false
		onResult := append([]func(Result){}, w.onResult...)
		w.mu.Unlock()

		ch <- res
		close(ch)
		for _, fn := range onResult {
			fn(res)
		}
	}()
	return id, ch, nil
}

// Wait blocks until the in-flight capture, if any, has finished.
func (w *Worker) Wait() {
	w.inflight.Wait()
}
