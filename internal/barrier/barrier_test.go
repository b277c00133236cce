package barrier

import (
	"context"
	"sync"
	"testing"
	"time"
)

func runWorker(t *testing.T, ctx context.Context, o *Orchestrator, id int, cycles int, wg *sync.WaitGroup) {
	defer wg.Done()
	o.SetCameraReady(id)
	if !o.AwaitInitialTrigger(ctx, id) {
		t.Errorf("camera %d: initial trigger await failed", id)
		return
	}
	for i := 0; i < cycles; i++ {
		if !o.AwaitShouldGrab(ctx, id) {
			t.Errorf("camera %d: should_grab await failed at cycle %d", id, i)
			return
		}
		o.SignalGrabbed(id)
		if !o.AwaitShouldRetrieve(ctx, id) {
			t.Errorf("camera %d: should_retrieve await failed at cycle %d", id, i)
			return
		}
		o.SignalRetrieved(id)
	}
}

func TestBarrierCycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids := []int{0, 1}
	o := New(ids)

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, id := range ids {
		go runWorker(t, ctx, o, id, 3, &wg)
	}

	if !o.AwaitAllReady(ctx) {
		t.Fatal("driver: await all ready failed")
	}
	o.FireInitialTriggers()

	for i := 0; i < 3; i++ {
		o.BeginGrab()
		if !o.AwaitAllGrabbed(ctx) {
			t.Fatalf("driver: await all grabbed failed at cycle %d", i)
		}
		o.BeginRetrieve()
		if !o.AwaitAllNewFrameAvailable(ctx) {
			t.Fatalf("driver: await all new frame available failed at cycle %d", i)
		}
		n := o.CompleteCycle()
		if n != uint64(i+1) {
			t.Fatalf("expected multi_frame_number %d, got %d", i+1, n)
		}
		if v := o.AuditCleared(); len(v) != 0 {
			t.Fatalf("unexpected flag violations after cycle %d: %v", i, v)
		}
	}

	wg.Wait()
}

func TestBarrierKillUnwindsAwaits(t *testing.T) {
	ctx := context.Background()
	o := New([]int{0})

	done := make(chan bool, 1)
	go func() {
		done <- o.AwaitShouldGrab(ctx, 0)
	}()

	time.Sleep(10 * time.Millisecond)
	o.Kill()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected AwaitShouldGrab to return false after kill")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitShouldGrab did not unwind after kill")
	}
}
