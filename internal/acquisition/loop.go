package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/roach88/stimsync/internal/camera"
	"github.com/roach88/stimsync/internal/fault"
	"github.com/roach88/stimsync/internal/recorder"
	"github.com/roach88/stimsync/internal/stimulus"
	"github.com/roach88/stimsync/internal/synctrack"
)

// outcome is how a loop ended.
type outcome struct {
	// completed is true when every direction (or playback frame) was processed.
	completed bool
	// err is the fault that halted the loop, nil on completion or stop.
	err error
}

// hooks are the manager callbacks invoked from the loop goroutine.
type hooks struct {
	// frame is called once per captured (or presented) frame.
	frame func(captured camera.CapturedFrame, meta *stimulus.Metadata)
	// directionDone is called when the last frame of a direction was appended.
	directionDone func(direction string)
}

// loop is one session's capture goroutine.
//
// Cancellation is a single atomic flag checked once per iteration. Setting
// it also interrupts a pending pacer wait, but never an in-flight capture:
// the current iteration always finishes and its record is flushed.
type loop struct {
	cam        camera.Camera
	display    camera.Display
	gen        stimulus.Generator
	rec        *recorder.Recorder
	tracker    *synctrack.Tracker
	pacer      Pacer
	directions []string
	hooks      hooks

	stop       atomic.Bool
	cancelWait context.CancelFunc

	done chan struct{}
	out  outcome
}

func newLoop(pacer Pacer, tracker *synctrack.Tracker, h hooks) *loop {
	return &loop{
		pacer:   pacer,
		tracker: tracker,
		hooks:   h,
		done:    make(chan struct{}),
	}
}

// requestStop asks the loop to finish its current iteration and exit.
func (l *loop) requestStop() {
	l.stop.Store(true)
	if l.cancelWait != nil {
		l.cancelWait()
	}
}

// start runs body on a new goroutine and publishes its outcome on l.done.
func (l *loop) start(ctx context.Context, body func(ctx, waitCtx context.Context) outcome) {
	waitCtx, cancel := context.WithCancel(ctx)
	l.cancelWait = cancel
	go func() {
		defer close(l.done)
		defer cancel()
		defer l.pacer.Stop()
		l.out = body(ctx, waitCtx)
	}()
}

// wait blocks on the pacer. A wait interrupted by requestStop is not a fault.
func (l *loop) wait(waitCtx context.Context) (stopped bool, err error) {
	if err := l.pacer.Wait(waitCtx); err != nil {
		if l.stop.Load() {
			return true, nil
		}
		return false, fault.Wrap(fault.KindRuntimeFault, "pace", "pacer wait failed", err)
	}
	return false, nil
}

// runRecording is the capture-and-trigger loop.
//
// Per iteration: capture, generate the stimulus frame for the next index,
// append the pair, present, observe cadence, then check completion and the
// stop flag.
func (l *loop) runRecording(ctx, waitCtx context.Context) outcome {
	dirIdx, frameIdx := 0, 0
	for !l.stop.Load() {
		if stopped, err := l.wait(waitCtx); stopped || err != nil {
			return outcome{err: err}
		}

		direction := l.directions[dirIdx]

		cam, err := l.cam.Capture(ctx)
		if err != nil {
			return outcome{err: &fault.Error{Kind: fault.KindRuntimeFault, Op: "capture", Direction: direction, Message: "camera capture failed", Err: err}}
		}

		frame, meta, err := l.gen.Generate(direction, frameIdx)
		if err != nil {
			genErr := &fault.Error{
				Kind: fault.KindRuntimeFault, Op: "generate", Direction: direction,
				Message: fmt.Sprintf("stimulus generation failed at frame %d", frameIdx), Err: err,
			}
			// The capture happened; keep it so the direction's counts show the gap.
			if orphanErr := l.rec.AppendOrphan(direction, cam); orphanErr != nil {
				return outcome{err: errors.Join(genErr, orphanErr)}
			}
			return outcome{err: genErr}
		}
		meta.CameraFrameIndex = cam.Index

		if _, err := l.rec.Append(cam, meta); err != nil {
			return outcome{err: err}
		}

		if l.display != nil {
			if err := l.display.Present(ctx, frame); err != nil {
				return outcome{err: &fault.Error{Kind: fault.KindRuntimeFault, Op: "present", Direction: direction, Message: "display failed", Err: err}}
			}
		}

		l.tracker.Observe(cam.TimestampUS)
		l.hooks.frame(cam, &meta)

		if l.gen.IsDirectionComplete(frameIdx) {
			l.hooks.directionDone(direction)
			dirIdx++
			frameIdx = 0
			if dirIdx == len(l.directions) {
				return outcome{completed: true}
			}
		} else {
			frameIdx++
		}
	}
	return outcome{}
}

// runPreview captures frames for cadence monitoring only.
func (l *loop) runPreview(ctx, waitCtx context.Context) outcome {
	for !l.stop.Load() {
		if stopped, err := l.wait(waitCtx); stopped || err != nil {
			return outcome{err: err}
		}
		cam, err := l.cam.Capture(ctx)
		if err != nil {
			return outcome{err: fault.Wrap(fault.KindRuntimeFault, "capture", "camera capture failed", err)}
		}
		l.tracker.Observe(cam.TimestampUS)
		l.hooks.frame(cam, nil)
	}
	return outcome{}
}

// runPlayback regenerates each recorded stimulus frame, verifies it against
// the recorded content hash and presents it at the recorded frame rate.
func (l *loop) runPlayback(plan *playbackPlan) func(ctx, waitCtx context.Context) outcome {
	return func(ctx, waitCtx context.Context) outcome {
		for _, dir := range plan.directions {
			for _, want := range dir.frames {
				if l.stop.Load() {
					return outcome{}
				}
				if stopped, err := l.wait(waitCtx); stopped || err != nil {
					return outcome{err: err}
				}

				frame, meta, err := l.gen.Generate(dir.label, want.FrameIndex)
				if err != nil {
					return outcome{err: &fault.Error{Kind: fault.KindRuntimeFault, Op: "playback", Direction: dir.label, Message: "regenerate frame", Err: err}}
				}
				if meta.Hash != want.Hash {
					return outcome{err: &fault.Error{
						Kind: fault.KindIntegrity, Op: "playback", Direction: dir.label,
						Message: fmt.Sprintf("frame %d hash %s, recorded %s", want.FrameIndex, meta.Hash, want.Hash),
					}}
				}
				if l.display != nil {
					if err := l.display.Present(ctx, frame); err != nil {
						return outcome{err: &fault.Error{Kind: fault.KindRuntimeFault, Op: "present", Direction: dir.label, Message: "display failed", Err: err}}
					}
				}
				meta.CameraFrameIndex = want.CameraFrameIndex
				l.hooks.frame(camera.CapturedFrame{Index: want.CameraFrameIndex, TimestampUS: want.TimestampUS}, &meta)
			}
			l.hooks.directionDone(dir.label)
		}
		return outcome{completed: true}
	}
}
