package capture

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/freemocap/skellycam/internal/barrier"
	"github.com/freemocap/skellycam/internal/clock"
	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/metadata"
	"github.com/freemocap/skellycam/internal/sfb"
)

// Worker is one Capture Worker: owns a Device and an SFB Buffer for a
// single camera, and drives the barrier protocol of spec §4.2 from the CW
// side. Per-camera frame_number starts at 0 and increments once per
// successful multi-frame cycle (spec §4.4).
type Worker struct {
	CameraID int
	device   Device
	buf      *sfb.Buffer
	orch     *barrier.Orchestrator

	rotation    config.Rotation
	frameNumber uint64

	mu         sync.Mutex
	pending    inPlaceUpdate
	hasPending bool
}

// inPlaceUpdate is a hot-appliable config change awaiting application by
// the worker's own goroutine (spec §4.5). A nil field means "unchanged".
type inPlaceUpdate struct {
	exposure  *int
	framerate *float64
	rotation  *config.Rotation
}

// NewWorker builds a Capture Worker for one camera.
func NewWorker(cameraID int, device Device, buf *sfb.Buffer, orch *barrier.Orchestrator, rotation config.Rotation) *Worker {
	return &Worker{CameraID: cameraID, device: device, buf: buf, orch: orch, rotation: rotation}
}

// QueueInPlaceUpdate enqueues a hot-appliable config change (spec §4.5:
// "routed to the CWs via a config-update channel; the CW applies them
// between frames"). The update is merged into whatever is still pending
// rather than applied synchronously here, so it is always the worker's own
// goroutine — never the caller's — that touches the Device, and
// Device.Reconfigure never races with a concurrent Grab/Retrieve.
func (w *Worker) QueueInPlaceUpdate(exposure *int, framerate *float64, rotation *config.Rotation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if exposure != nil {
		w.pending.exposure = exposure
	}
	if framerate != nil {
		w.pending.framerate = framerate
	}
	if rotation != nil {
		w.pending.rotation = rotation
	}
	w.hasPending = true
}

// applyPending applies and clears any queued in-place update. Called once
// per cycle, between frames (spec §4.5).
func (w *Worker) applyPending(ctx context.Context) error {
	w.mu.Lock()
	if !w.hasPending {
		w.mu.Unlock()
		return nil
	}
	u := w.pending
	w.pending = inPlaceUpdate{}
	w.hasPending = false
	w.mu.Unlock()

	if u.rotation != nil {
		w.rotation = *u.rotation
	}
	if u.exposure != nil || u.framerate != nil {
		if err := w.device.Reconfigure(ctx, u.exposure, u.framerate); err != nil {
			return fmt.Errorf("reconfigure: %w", err)
		}
	}
	return nil
}

// Run opens the device, performs the warm-up probe, reports camera_ready,
// then drives the barrier loop until ctx is cancelled or the kill flag is
// observed (spec §4.4, §7 error policy).
func (w *Worker) Run(ctx context.Context) error {
	if err := w.device.Open(ctx); err != nil {
		return fmt.Errorf("capture: camera %d: device open: %w", w.CameraID, err)
	}
	defer w.device.Close()

	if err := w.warmUp(ctx); err != nil {
		return fmt.Errorf("capture: camera %d: warm-up: %w", w.CameraID, err)
	}

	w.orch.SetCameraReady(w.CameraID)
	if !w.orch.AwaitInitialTrigger(ctx, w.CameraID) {
		return nil // killed or ctx cancelled before the group ever fired
	}

	for {
		if !w.orch.AwaitShouldGrab(ctx, w.CameraID) {
			return nil
		}
		preGrab := clock.NowNanos()
		if err := w.grabWithRetry(ctx); err != nil {
			return nil // ctx cancelled or killed mid-retry
		}
		postGrab := clock.NowNanos()
		w.orch.SignalGrabbed(w.CameraID)

		if !w.orch.AwaitShouldRetrieve(ctx, w.CameraID) {
			return nil
		}
		preRetrieve := clock.NowNanos()
		img, err := w.device.Retrieve(ctx)
		if err != nil {
			// FrameRetrieveError: fatal to session (spec §7).
			w.orch.Kill()
			return fmt.Errorf("capture: camera %d: retrieve: %w", w.CameraID, err)
		}
		postRetrieve := clock.NowNanos()

		rotated := rotate(img, w.rotation)
		imageBytes := rgbaToBytes(rotated, w.buf.Channels)

		meta := metadata.FrameMetadata{
			CameraID:         uint64(w.CameraID),
			FrameNumber:      w.frameNumber,
			PreGrabNs:        preGrab,
			PostGrabNs:       postGrab,
			PreRetrieveNs:    preRetrieve,
			PostRetrieveNs:   postRetrieve,
			CopyIntoBufferNs: clock.NowNanos(),
		}
		if err := w.buf.PutNewFrame(imageBytes, meta); err != nil {
			// ConfigMismatchError: programming error, abort (spec §7).
			w.orch.Kill()
			return fmt.Errorf("capture: camera %d: %w", w.CameraID, err)
		}
		w.frameNumber++
		w.orch.SignalRetrieved(w.CameraID)

		if err := w.applyPending(ctx); err != nil {
			w.orch.Kill()
			return fmt.Errorf("capture: camera %d: %w", w.CameraID, err)
		}
	}
}

// grabWithRetry retries Grab indefinitely on failure, per spec §4.2 edge
// cases ("If a CW's grab fails, it retries indefinitely without
// advancing") and §7 FrameGrabRetry ("absorbed... never surfaced"). It
// returns only when a grab succeeds or the context/kill flag ends the run.
func (w *Worker) grabWithRetry(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.orch.Killed() {
			return fmt.Errorf("capture: camera %d: killed", w.CameraID)
		}
		if err := w.device.Grab(ctx); err == nil {
			return nil
		}
		log.Printf("capture: camera %d: grab failed, retrying", w.CameraID)
	}
}

// warmUp issues discarded grab+retrieve cycles until the result looks like
// a valid frame (spec §9 Open Question decision: warm-up ends at the first
// successful grab+retrieve with valid metadata). Warm-up frames never
// reach the SFB and are never assigned a frame_number.
func (w *Worker) warmUp(ctx context.Context) error {
	const maxAttempts = 60
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		preGrab := clock.NowNanos()
		if err := w.device.Grab(ctx); err != nil {
			continue
		}
		postGrab := clock.NowNanos()
		preRetrieve := clock.NowNanos()
		img, err := w.device.Retrieve(ctx)
		if err != nil {
			continue
		}
		postRetrieve := clock.NowNanos()
		if img == nil {
			continue
		}
		probe := metadata.FrameMetadata{
			PostGrabNs:     postGrab,
			PreGrabNs:      preGrab,
			PostRetrieveNs: postRetrieve,
			PreRetrieveNs:  preRetrieve,
		}
		if probe.Valid() {
			return nil
		}
	}
	return fmt.Errorf("warm-up did not produce a valid frame in %d attempts", maxAttempts)
}
