// Package capture runs the still-capture pipeline: switch the camera to its
// still configuration, take one frame, resolve when it was taken from the
// sensor timestamp and store it under the pictures directory.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nrednav/cuid2"
	"golang.org/x/sync/semaphore"

	"github.com/cjeanneret/PiSnap/internal/debug"
	"github.com/cjeanneret/PiSnap/internal/hw/camera"
	"github.com/cjeanneret/PiSnap/internal/logic/focus"
	"github.com/cjeanneret/PiSnap/internal/logic/timestamp"
)

// Saver persists a picture taken at ts and returns where it went.
// *pictures.Store implements it.
type Saver interface {
	Save(ts time.Time, data []byte) (string, error)
}

// Options tunes an Orchestrator. The zero value is valid.
type Options struct {
	Metrics       *Metrics // nil disables metrics
	FocusEstimate bool     // compute Result.FocusScore
}

// Orchestrator owns the camera for the duration of each capture.
// At most one capture runs at a time; others wait on the gate.
type Orchestrator struct {
	camera   camera.Camera
	resolver *timestamp.Resolver
	store    Saver
	opts     Options
	gate     *semaphore.Weighted
	now      func() time.Time
}

// NewOrchestrator wires the pipeline. A nil resolver uses the system clock.
func NewOrchestrator(cam camera.Camera, resolver *timestamp.Resolver, store Saver, opts Options) *Orchestrator {
	if resolver == nil {
		resolver = timestamp.NewResolver(nil)
	}
	return &Orchestrator{
		camera:   cam,
		resolver: resolver,
		store:    store,
		opts:     opts,
		gate:     semaphore.NewWeighted(1),
		now:      time.Now,
	}
}

// NewID returns a fresh capture ID.
func NewID() string {
	return cuid2.Generate()
}

// Capture runs one capture attempt with a fresh ID.
func (o *Orchestrator) Capture(ctx context.Context) Result {
	return o.CaptureWithID(ctx, NewID())
}

// CaptureWithID runs one capture attempt. It never panics and always returns
// a Result; failures carry a *Error.
func (o *Orchestrator) CaptureWithID(ctx context.Context, id string) (res Result) {
	start := o.now()
	res.ID = id

	defer func() {
		if r := recover(); r != nil {
			res = Result{ID: id, Err: wrap(KindCamera, "capture", fmt.Errorf("panic: %v", r))}
		}
		o.opts.Metrics.RecordCapture(context.WithoutCancel(ctx), res.status(), KindOf(res.Err), o.now().Sub(start))
		if res.OK() {
			debug.Saved(id, res.FilePath)
		} else {
			debug.Error(fmt.Errorf("capture %s: %w", id, res.Err))
		}
	}()

	if err := o.gate.Acquire(ctx, 1); err != nil {
		res.Err = wrap(KindCamera, "acquire camera", err)
		return res
	}
	defer o.gate.Release(1)

	path, taken, score, err := o.run(ctx, id)
	if err != nil {
		res.Err = err
		return res
	}
	res.FilePath, res.TakenAt, res.FocusScore = path, taken, score
	return res
}

func (o *Orchestrator) run(ctx context.Context, id string) (string, time.Time, float64, error) {
	debug.Section("Capture " + id)

	debug.Step(1, "switch to still configuration and capture")
	req, err := o.camera.SwitchAndCapture(ctx)
	if err != nil {
		return "", time.Time{}, 0, wrap(KindCamera, "switch and capture", err)
	}
	defer func() {
		if err := req.Release(); err != nil {
			debug.Error(fmt.Errorf("capture %s: release request: %w", id, err))
		}
	}()

	debug.Step(2, "resolve sensor timestamp")
	md := req.Metadata()
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.PrintStruct("metadata", md)
	}
	taken, err := o.resolver.ResolveMetadata(md)
	switch {
	case errors.Is(err, timestamp.ErrMissingMetadata):
		return "", time.Time{}, 0, wrap(KindMissingMetadata, "read metadata", err)
	case err != nil:
		return "", time.Time{}, 0, wrap(KindMetadata, "resolve timestamp", err)
	}
	debug.Verbose("Capture %s taken at %s", id, taken.Format(time.RFC3339Nano))

	debug.Step(3, "save picture")
	image := req.Image()
	path, err := o.store.Save(taken, image)
	if err != nil {
		return "", time.Time{}, 0, wrap(KindFilesystem, "save picture", err)
	}

	var score float64
	if o.opts.FocusEstimate {
		debug.Step(4, "estimate focus")
		if s, err := focus.Score(image); err != nil {
			debug.Verbose("Capture %s: focus estimate skipped: %v", id, err)
		} else {
			score = s
			debug.Value("focus_score", fmt.Sprintf("%.1f", s))
		}
	}
	return path, taken, score, nil
}
