package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/freemocap/skellycam/internal/barrier"
	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/sfb"
)

func TestWorkerRunProducesFrames(t *testing.T) {
	dir := t.TempDir()
	const w, h, c = 16, 12, 3
	buf, err := sfb.Create(dir, "sess", 0, h, w, c)
	if err != nil {
		t.Fatalf("sfb.Create: %v", err)
	}
	defer func() {
		buf.Close()
		buf.Unlink()
	}()

	orch := barrier.New([]int{0})
	device := NewFakeDevice(Spec{Width: w, Height: h})
	worker := NewWorker(0, device, buf, orch, config.RotateNone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(ctx)
	}()

	if !orch.AwaitAllReady(ctx) {
		t.Fatal("worker never reported camera_ready")
	}
	orch.FireInitialTriggers()

	for i := 0; i < 5; i++ {
		orch.BeginGrab()
		if !orch.AwaitAllGrabbed(ctx) {
			t.Fatalf("cycle %d: grab did not complete", i)
		}
		orch.BeginRetrieve()
		if !orch.AwaitAllNewFrameAvailable(ctx) {
			t.Fatalf("cycle %d: retrieve did not complete", i)
		}
		orch.CompleteCycle()

		imageBytes, meta := buf.RetrieveFrameView()
		if len(imageBytes) != w*h*c {
			t.Fatalf("cycle %d: unexpected image size %d", i, len(imageBytes))
		}
		if meta.FrameNumber != uint64(i) {
			t.Fatalf("cycle %d: expected frame_number %d, got %d", i, i, meta.FrameNumber)
		}
		if !meta.Valid() {
			t.Fatalf("cycle %d: metadata not valid: %+v", i, meta)
		}
	}

	orch.Kill()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after kill")
	}
}

// TestWorkerFatalRetrieveFailureKillsGroup covers spec.md §8's "fatal
// retrieve failure" scenario: inject a retrieve error on one camera and
// verify BarrierOrchestrator.Kill fires, ending the other camera's run too.
func TestWorkerFatalRetrieveFailureKillsGroup(t *testing.T) {
	dir := t.TempDir()
	const w, h, c = 16, 12, 3
	buf0, err := sfb.Create(dir, "sess", 0, h, w, c)
	if err != nil {
		t.Fatalf("sfb.Create camera 0: %v", err)
	}
	buf1, err := sfb.Create(dir, "sess", 1, h, w, c)
	if err != nil {
		t.Fatalf("sfb.Create camera 1: %v", err)
	}
	defer func() {
		buf0.Close()
		buf0.Unlink()
		buf1.Close()
		buf1.Unlink()
	}()

	orch := barrier.New([]int{0, 1})
	// 1 warm-up retrieve + 2 good main-loop retrieves, then the 3rd
	// main-loop retrieve (the 4th Retrieve call overall) fails.
	device0 := NewFaultyFakeDevice(Spec{Width: w, Height: h}, 4)
	device1 := NewFakeDevice(Spec{Width: w, Height: h})
	worker0 := NewWorker(0, device0, buf0, orch, config.RotateNone)
	worker1 := NewWorker(1, device1, buf1, orch, config.RotateNone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err0 := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err0 <- worker0.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = worker1.Run(ctx)
	}()

	if !orch.AwaitAllReady(ctx) {
		t.Fatal("workers never reported camera_ready")
	}
	orch.FireInitialTriggers()

	for i := 0; i < 3; i++ {
		orch.BeginGrab()
		if !orch.AwaitAllGrabbed(ctx) {
			t.Fatalf("cycle %d: grab did not complete", i)
		}
		orch.BeginRetrieve()
		if i < 2 {
			if !orch.AwaitAllNewFrameAvailable(ctx) {
				t.Fatalf("cycle %d: retrieve did not complete", i)
			}
			orch.CompleteCycle()
		}
	}

	select {
	case err := <-err0:
		if err == nil {
			t.Fatal("expected camera 0 to return a fatal retrieve error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("camera 0 worker did not exit after injected retrieve failure")
	}

	if !orch.Killed() {
		t.Fatal("expected BarrierOrchestrator.Kill to have fired")
	}

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("camera 1's worker did not exit after the group was killed")
	}
}

// TestBarrierGrabSkewWithinBound covers spec.md §8's cross-camera
// synchronization bound: max(post_grab_ns) - min(post_grab_ns) <= 5ms
// across simultaneously-triggered cameras.
func TestBarrierGrabSkewWithinBound(t *testing.T) {
	dir := t.TempDir()
	const w, h, c = 16, 12, 3
	buf0, err := sfb.Create(dir, "sess", 0, h, w, c)
	if err != nil {
		t.Fatalf("sfb.Create camera 0: %v", err)
	}
	buf1, err := sfb.Create(dir, "sess", 1, h, w, c)
	if err != nil {
		t.Fatalf("sfb.Create camera 1: %v", err)
	}
	defer func() {
		buf0.Close()
		buf0.Unlink()
		buf1.Close()
		buf1.Unlink()
	}()

	orch := barrier.New([]int{0, 1})
	worker0 := NewWorker(0, NewFakeDevice(Spec{Width: w, Height: h}), buf0, orch, config.RotateNone)
	worker1 := NewWorker(1, NewFakeDevice(Spec{Width: w, Height: h}), buf1, orch, config.RotateNone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = worker0.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = worker1.Run(ctx)
	}()

	if !orch.AwaitAllReady(ctx) {
		t.Fatal("workers never reported camera_ready")
	}
	orch.FireInitialTriggers()

	const bound = uint64(5 * time.Millisecond)
	for i := 0; i < 10; i++ {
		orch.BeginGrab()
		if !orch.AwaitAllGrabbed(ctx) {
			t.Fatalf("cycle %d: grab did not complete", i)
		}
		orch.BeginRetrieve()
		if !orch.AwaitAllNewFrameAvailable(ctx) {
			t.Fatalf("cycle %d: retrieve did not complete", i)
		}
		orch.CompleteCycle()

		_, meta0 := buf0.RetrieveFrameView()
		_, meta1 := buf1.RetrieveFrameView()
		if skew := absDiff(meta0.PostGrabNs, meta1.PostGrabNs); skew > bound {
			t.Fatalf("cycle %d: post_grab skew %dns exceeds %dns", i, skew, bound)
		}
	}

	orch.Kill()
	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after kill")
	}
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
