package camgroup

import (
	"context"
	"testing"
	"time"

	"github.com/freemocap/skellycam/internal/capture"
	"github.com/freemocap/skellycam/internal/config"
)

func testConfigs() config.CameraConfigs {
	return config.NewCameraConfigs([]config.CameraConfig{
		{CameraID: 0, UseThisCamera: true, Width: 16, Height: 12, ColorChannels: 3},
		{CameraID: 1, UseThisCamera: true, Width: 16, Height: 12, ColorChannels: 3},
	})
}

func fakeFactory(id int, cfg config.CameraConfig) capture.Device {
	return capture.NewFakeDevice(capture.Spec{Width: cfg.Width, Height: cfg.Height})
}

func TestConnectProducesPayloads(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, err := Connect(ctx, dir, "sess", testConfigs(), fakeFactory, 4)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer g.Close()

	for i := 0; i < 3; i++ {
		select {
		case payload := <-g.Payloads():
			if len(payload.Frames) != 2 {
				t.Fatalf("expected 2 frames, got %d", len(payload.Frames))
			}
			if payload.MultiFrameNumber != uint64(i+1) {
				t.Fatalf("expected multi_frame_number %d, got %d", i+1, payload.MultiFrameNumber)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for payload %d", i)
		}
	}
}

func TestDescriptorCarriesCounterPathAndCameras(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, err := Connect(ctx, dir, "sess", testConfigs(), fakeFactory, 4)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	desc := g.Descriptor()
	if desc.CounterPath == "" {
		t.Fatal("expected non-empty counter path in descriptor")
	}
	if len(desc.Cameras) != 2 {
		t.Fatalf("expected 2 cameras in descriptor, got %d", len(desc.Cameras))
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestUpdateInPlaceAppliesExposureWithoutGap covers spec.md §8 item 2
// ("Exposure in-place update: ... the sidecar shows no gap in
// frame_number"): an in-place exposure change must not interrupt the
// multi_frame_number sequence.
func TestUpdateInPlaceAppliesExposureWithoutGap(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, err := Connect(ctx, dir, "sess", testConfigs(), fakeFactory, 4)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer g.Close()

	var lastFrame uint64
	for i := 0; i < 2; i++ {
		select {
		case p := <-g.Payloads():
			lastFrame = p.MultiFrameNumber
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for payload %d before update", i)
		}
	}

	newExposure := 500
	plan := config.Plan{Kind: config.PlanInPlace, InPlace: []config.InPlaceChange{
		{CameraID: 0, Exposure: &newExposure},
	}}
	if err := g.UpdateInPlace(plan); err != nil {
		t.Fatalf("UpdateInPlace: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case p := <-g.Payloads():
			if p.MultiFrameNumber != lastFrame+1 {
				t.Fatalf("expected no gap in multi_frame_number: got %d after %d", p.MultiFrameNumber, lastFrame)
			}
			lastFrame = p.MultiFrameNumber
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for payload %d after update", i)
		}
	}
}
