// Package barrier implements the Barrier Orchestrator: the per-camera flag
// set and four-phase driver loop that coordinate N Capture Workers through
// simultaneous grab and retrieve phases (spec §4.2).
//
// Flags are plain uint32 words read/written through sync/atomic, spun on
// with the spec's documented 1us/10ms/1s wait tiers. This is a direct,
// atomic-only analog of the teacher pack's polling loops (ticker + select
// on ctx.Done()), adapted to the spec's tighter latency budget where a
// ticker's minimum granularity would blow through the synchronization
// bound (spec §8: "max(post_grab_ns)-min(post_grab_ns) <= 5ms").
package barrier

import (
	"context"
	"sync/atomic"
	"time"
)

// wait tiers named in spec §4.2/§9.
const (
	spinInterval       = time.Microsecond
	readyWaitInterval  = 10 * time.Millisecond
	initialWaitInterval = time.Second
)

// flag is a single cross-process-visible boolean, backed by a uint32 so it
// can later be relocated into the same mapped region as the SFB metadata
// (spec §4.2: "cross-process visible").
type flag struct{ v uint32 }

func (f *flag) set()          { atomic.StoreUint32(&f.v, 1) }
func (f *flag) clear()        { atomic.StoreUint32(&f.v, 0) }
func (f *flag) isSet() bool   { return atomic.LoadUint32(&f.v) == 1 }

// cameraFlags holds the per-camera flag set named in spec §4.2.
type cameraFlags struct {
	cameraReady       flag
	initialTrigger    flag
	shouldGrab        flag
	frameGrabbed      flag
	shouldRetrieve    flag
	frameRetrieved    flag
	newFrameAvailable flag
}

// Orchestrator drives N Capture Workers through the barrier protocol. The
// driver loop (internal/camgroup's driverLoop, calling the Begin*/AwaitAll*/
// CompleteCycle methods) lives in the Camera Group Process; each Capture
// Worker calls the Await*/Signal* methods for its own camera ID.
type Orchestrator struct {
	ids   []int
	flags map[int]*cameraFlags
	kill  flag

	multiFrameNumber uint64
}

// New builds an Orchestrator for the given camera IDs, in order.
func New(ids []int) *Orchestrator {
	o := &Orchestrator{ids: append([]int(nil), ids...), flags: make(map[int]*cameraFlags, len(ids))}
	for _, id := range ids {
		o.flags[id] = &cameraFlags{}
	}
	return o
}

// Kill sets the group-level kill flag (spec §4.2: "group-level kill flag").
func (o *Orchestrator) Kill() { o.kill.set() }

// Killed reports whether the kill flag has been observed set.
func (o *Orchestrator) Killed() bool { return o.kill.isSet() }

// spinWait polls cond at spinInterval until it's true, ctx is cancelled, or
// the kill flag is set. Returns false if it exited without cond becoming true.
func (o *Orchestrator) spinWait(ctx context.Context, cond func() bool) bool {
	for {
		if cond() {
			return true
		}
		if o.Killed() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(spinInterval):
		}
	}
}

// coarseWait is spinWait with a coarser polling interval, used at the
// ready/initial boundaries named in spec §4.2.
func (o *Orchestrator) coarseWait(ctx context.Context, interval time.Duration, cond func() bool) bool {
	for {
		if cond() {
			return true
		}
		if o.Killed() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}

// --- Capture Worker side ---

// SetCameraReady is called once by a CW after device open + warm-up
// completes (spec §4.2 phase 1).
func (o *Orchestrator) SetCameraReady(id int) { o.flags[id].cameraReady.set() }

// AwaitInitialTrigger blocks until the driver's one-shot initial fire for
// this camera, then clears it (spec §4.2 phase 2).
func (o *Orchestrator) AwaitInitialTrigger(ctx context.Context, id int) bool {
	f := o.flags[id]
	ok := o.coarseWait(ctx, initialWaitInterval, f.initialTrigger.isSet)
	if ok {
		f.initialTrigger.clear()
	}
	return ok
}

// AwaitShouldGrab blocks until the driver requests a grab for this camera
// (spec §4.2 step 3a/3b).
func (o *Orchestrator) AwaitShouldGrab(ctx context.Context, id int) bool {
	return o.spinWait(ctx, o.flags[id].shouldGrab.isSet)
}

// SignalGrabbed records that this CW finished grab, and clears should_grab
// (spec §4.2 step 3b).
func (o *Orchestrator) SignalGrabbed(id int) {
	f := o.flags[id]
	f.frameGrabbed.set()
	f.shouldGrab.clear()
}

// AwaitShouldRetrieve blocks until the driver requests retrieve for this
// camera (spec §4.2 step 3d/3e).
func (o *Orchestrator) AwaitShouldRetrieve(ctx context.Context, id int) bool {
	return o.spinWait(ctx, o.flags[id].shouldRetrieve.isSet)
}

// SignalRetrieved records that this CW finished retrieve+SFB write, and
// clears should_retrieve and frame_grabbed (spec §4.2 step 3e).
func (o *Orchestrator) SignalRetrieved(id int) {
	f := o.flags[id]
	f.newFrameAvailable.set()
	f.shouldRetrieve.clear()
	f.frameGrabbed.clear()
}

// --- Driver (Camera Group Process) side ---

// AwaitAllReady blocks until every camera's camera_ready flag is set (spec
// §4.2 phase 1). Fired once per group lifetime.
func (o *Orchestrator) AwaitAllReady(ctx context.Context) bool {
	return o.coarseWait(ctx, readyWaitInterval, o.allSet(func(f *cameraFlags) *flag { return &f.cameraReady }))
}

// FireInitialTriggers sets the one-shot initial_trigger for every camera
// (spec §4.2 phase 2).
func (o *Orchestrator) FireInitialTriggers() {
	for _, id := range o.ids {
		o.flags[id].initialTrigger.set()
	}
}

// BeginGrab sets should_grab on every camera simultaneously (spec §4.2
// step 3a).
func (o *Orchestrator) BeginGrab() {
	for _, id := range o.ids {
		o.flags[id].shouldGrab.set()
	}
}

// AwaitAllGrabbed blocks until every camera's frame_grabbed flag is set
// (spec §4.2 step 3c).
func (o *Orchestrator) AwaitAllGrabbed(ctx context.Context) bool {
	return o.spinWait(ctx, o.allSet(func(f *cameraFlags) *flag { return &f.frameGrabbed }))
}

// BeginRetrieve sets should_retrieve on every camera (spec §4.2 step 3d).
func (o *Orchestrator) BeginRetrieve() {
	for _, id := range o.ids {
		o.flags[id].shouldRetrieve.set()
	}
}

// AwaitAllNewFrameAvailable blocks until every camera's new_frame_available
// flag is set (spec §4.2 step 3f).
func (o *Orchestrator) AwaitAllNewFrameAvailable(ctx context.Context) bool {
	return o.spinWait(ctx, o.allSet(func(f *cameraFlags) *flag { return &f.newFrameAvailable }))
}

// CompleteCycle clears new_frame_available on every camera and increments
// the multi_frame_number (spec §4.2 step 3f tail).
func (o *Orchestrator) CompleteCycle() uint64 {
	for _, id := range o.ids {
		o.flags[id].newFrameAvailable.clear()
	}
	o.multiFrameNumber++
	return o.multiFrameNumber
}

// AuditCleared reports whether every per-camera flag that should be clear
// between cycles actually is, surfacing a BarrierViolationError condition
// (spec §7) to the caller rather than panicking directly.
func (o *Orchestrator) AuditCleared() []string {
	var violations []string
	for _, id := range o.ids {
		f := o.flags[id]
		if f.shouldGrab.isSet() {
			violations = append(violations, "should_grab still set")
		}
		if f.frameGrabbed.isSet() {
			violations = append(violations, "frame_grabbed still set")
		}
		if f.shouldRetrieve.isSet() {
			violations = append(violations, "should_retrieve still set")
		}
		if f.newFrameAvailable.isSet() {
			violations = append(violations, "new_frame_available still set")
		}
	}
	return violations
}

func (o *Orchestrator) allSet(pick func(*cameraFlags) *flag) func() bool {
	return func() bool {
		for _, id := range o.ids {
			if !pick(o.flags[id]).isSet() {
				return false
			}
		}
		return true
	}
}
