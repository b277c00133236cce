// Package camgroup implements the Camera Group Process: hosts N Capture
// Workers and the Barrier Orchestrator driver loop, lifecycle-owns the
// CameraGroupSharedMemory, and assembles the MultiFramePayload each cycle
// (spec §2 item 4, §4.2 driver side).
package camgroup

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/freemocap/skellycam/internal/barrier"
	"github.com/freemocap/skellycam/internal/capture"
	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/payload"
	"github.com/freemocap/skellycam/internal/sfb"
)

// DeviceFactory builds the Device collaborator for one camera. Production
// wiring passes capture.NewFFmpegDevice; tests and the demo binary pass
// capture.NewFakeDevice.
type DeviceFactory func(id int, cfg config.CameraConfig) capture.Device

// Group is the running Camera Group Process state.
type Group struct {
	Session string
	Dir     string

	configs config.CameraConfigs
	sfbs    *sfb.Group
	orch    *barrier.Orchestrator
	shared  *barrier.SharedState
	workers map[int]*capture.Worker

	mu       sync.Mutex
	payloads chan payload.MultiFramePayload

	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Connect instantiates SFBs, the Barrier Orchestrator, Capture Workers, and
// starts the group, per spec §4.1 connect contract: "instantiate SFBs, BO,
// CWs, CGP; start. ... Returns when cameras are past the ready barrier."
// payloadBuffer sizes the channel the Frame Router (in-process mode) or
// session controller reads MultiFramePayloads from; 0 makes it unbuffered.
func Connect(ctx context.Context, dir, session string, configs config.CameraConfigs, newDevice DeviceFactory, payloadBuffer int) (*Group, error) {
	enabled := configs.Enabled()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("camgroup: connect: no enabled cameras")
	}

	ids := make([]int, 0, len(enabled))
	shapes := make(map[int][3]int, len(enabled))
	for _, c := range enabled {
		ids = append(ids, c.CameraID)
		shapes[c.CameraID] = [3]int{c.Height, c.Width, c.ColorChannels}
	}

	sfbGroup, err := sfb.CreateGroup(dir, session, ids, shapes)
	if err != nil {
		return nil, fmt.Errorf("camgroup: connect: %w", err)
	}

	sharedPath := filepath.Join(dir, session+"-counter")
	shared, err := barrier.CreateSharedState(sharedPath)
	if err != nil {
		sfbGroup.Close()
		sfbGroup.Unlink()
		return nil, fmt.Errorf("camgroup: connect: %w", err)
	}

	orch := barrier.New(ids)
	workers := make(map[int]*capture.Worker, len(enabled))
	for _, c := range enabled {
		buf, _ := sfbGroup.Buffer(c.CameraID)
		device := newDevice(c.CameraID, c)
		workers[c.CameraID] = capture.NewWorker(c.CameraID, device, buf, orch, c.Rotation)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g := &Group{
		Session:  session,
		Dir:      dir,
		configs:  configs,
		sfbs:     sfbGroup,
		orch:     orch,
		shared:   shared,
		workers:  workers,
		payloads: make(chan payload.MultiFramePayload, payloadBuffer),
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *capture.Worker) {
			defer wg.Done()
			if err := w.Run(runCtx); err != nil {
				log.Printf("camgroup: camera %d: %v", w.CameraID, err)
			}
		}(w)
	}

	if !orch.AwaitAllReady(runCtx) {
		cancel()
		wg.Wait()
		sfbGroup.Close()
		sfbGroup.Unlink()
		shared.Close()
		shared.Unlink()
		return nil, fmt.Errorf("camgroup: connect: not all cameras reached camera_ready")
	}
	orch.FireInitialTriggers()

	go g.driverLoop(runCtx, ids)
	go func() {
		wg.Wait()
		close(g.stopped)
	}()

	return g, nil
}

// Payloads returns the channel the driver loop publishes MultiFramePayloads
// to, one per completed barrier cycle.
func (g *Group) Payloads() <-chan payload.MultiFramePayload { return g.payloads }

// Descriptor builds the cross-process GroupDTO a Frame Router in another
// process reads to attach (spec §3 Lifecycles, §9 one-way DTO ownership).
func (g *Group) Descriptor() sfbGroupDescriptor {
	d := g.sfbs.DTO()
	d.CounterPath = g.shared.Path()
	return d
}

// driverLoop is the BO driver side of spec §4.2 step 3: fires should_grab,
// waits for all frame_grabbed, fires should_retrieve, waits for all
// new_frame_available, then assembles and publishes the MultiFramePayload.
func (g *Group) driverLoop(ctx context.Context, ids []int) {
	defer close(g.payloads)
	for {
		g.orch.BeginGrab()
		if !g.orch.AwaitAllGrabbed(ctx) {
			return
		}
		g.orch.BeginRetrieve()
		if !g.orch.AwaitAllNewFrameAvailable(ctx) {
			return
		}

		frames := make([]payload.CameraFrame, 0, len(ids))
		for _, id := range ids {
			buf, _ := g.sfbs.Buffer(id)
			imgView, meta := buf.RetrieveFrameView()
			owned := make([]byte, len(imgView))
			copy(owned, imgView)
			frames = append(frames, payload.CameraFrame{CameraID: id, Image: owned, Meta: meta})
		}

		n := g.orch.CompleteCycle()
		if violations := g.orch.AuditCleared(); len(violations) > 0 {
			// BarrierViolationError (spec §7): a programming error, fatal to
			// the session. Log a state dump and kill the group rather than
			// continuing with flags in an inconsistent state.
			log.Printf("camgroup: barrier violation after cycle %d, aborting: %v", n, violations)
			g.orch.Kill()
			return
		}
		g.shared.StoreFrameNumber(n)

		p := payload.MultiFramePayload{MultiFrameNumber: n, Frames: frames}
		select {
		case g.payloads <- p:
		case <-ctx.Done():
			return
		}
	}
}

// UpdateInPlace applies an in-place plan (spec §4.5) to the running
// workers without tearing the group down. Exposure/framerate/rotation are
// queued onto each affected Worker and applied by its own goroutine
// between frames (internal/capture.Worker.applyPending);
// writer_fourcc is not a Worker concern — it is applied by the recorder on
// the next session start (internal/recorder).
func (g *Group) UpdateInPlace(plan config.Plan) error {
	if plan.Kind != config.PlanInPlace {
		return fmt.Errorf("camgroup: UpdateInPlace called with non-in-place plan %v", plan.Kind)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range plan.InPlace {
		w, ok := g.workers[ch.CameraID]
		if !ok {
			continue
		}
		w.QueueInPlaceUpdate(ch.Exposure, ch.Framerate, ch.Rotation)
	}
	return nil
}

// Close sets the kill flag, waits for the driver and all workers to join,
// then closes and unlinks every shared-memory region owned by this group
// (spec §4.1 close contract, §8 "no shared-memory segment ... remains").
// Idempotent: a second Close is a no-op (spec §8 "close then close is a
// no-op").
func (g *Group) Close() error {
	g.closeOnce.Do(func() {
		g.orch.Kill()
		g.shared.SetKill()
		if g.cancel != nil {
			g.cancel()
		}
		<-g.stopped

		var firstErr error
		if err := g.sfbs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := g.sfbs.Unlink(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := g.shared.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := g.shared.Unlink(); err != nil && firstErr == nil {
			firstErr = err
		}
		g.closeErr = firstErr
	})
	return g.closeErr
}

// sfbGroupDescriptor aliases sfb.GroupDTO so callers of this package don't
// need a second import alias at call sites.
type sfbGroupDescriptor = sfb.GroupDTO
